package realtime

import "github.com/google/uuid"

// NewConnectionID returns a random UUID identifying one websocket connection.
func NewConnectionID() string {
	return uuid.NewString()
}

// NewEnvelopeID returns a time-ordered UUID (v7) so envelope ids sort in logs.
func NewEnvelopeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
