package identity

import (
	"context"
	"time"
)

// Account is the persisted principal. Personal fields hold field-cipher
// envelopes, never plaintext.
type Account struct {
	ID string

	Username  string
	FirstName string
	LastName  string

	// EmailHash is the deterministic envelope of the normalized email; unique.
	EmailHash string

	PasswordHash string

	// RefreshTokenHash is the digest of the only valid refresh token, if any.
	RefreshTokenHash *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount is the input of CreateAccount. ID is generated when empty.
type NewAccount struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	EmailHash    string
	PasswordHash string
	Now          time.Time
}

// ProfileUpdate carries replacement envelopes; nil fields are left unchanged.
type ProfileUpdate struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Username == nil && u.FirstName == nil && u.LastName == nil
}

// Store is the account persistence boundary.
type Store interface {
	CreateAccount(ctx context.Context, in NewAccount) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	AccountByEmailHash(ctx context.Context, emailHash string) (Account, error)

	// SetRefreshTokenHash overwrites the stored digest; the previous refresh
	// token stops matching immediately.
	SetRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error

	UpdateProfile(ctx context.Context, id string, in ProfileUpdate, now time.Time) (Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

func (in NewAccount) validate() string {
	switch {
	case in.EmailHash == "":
		return "email_hash is required"
	case in.PasswordHash == "":
		return "password_hash is required"
	case in.Username == "" || in.FirstName == "" || in.LastName == "":
		return "profile fields are required"
	}
	return ""
}
