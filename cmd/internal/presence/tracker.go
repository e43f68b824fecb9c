package presence

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"linkup/cmd/internal/auth/session"
)

var (
	// ErrNotFound is returned when the connecting user has no account.
	ErrNotFound = errors.New("presence: user not found")

	ErrInvalidInput = errors.New("presence: invalid input")
)

// Resolver returns the profile of an account. session.Service satisfies it.
type Resolver interface {
	FindByID(ctx context.Context, id string) (session.Account, error)
}

// Entry is one online user in a snapshot.
type Entry struct {
	ID      string          `json:"id"`
	Profile session.Profile `json:"profile"`
}

// Tracker is the connection registry. The zero value is not usable; use NewTracker.
type Tracker struct {
	resolver Resolver
	log      *slog.Logger
	metrics  *Metrics

	mu       sync.Mutex
	conns    map[string]map[string]struct{} // userID -> connIDs
	profiles map[string]session.Profile
	owners   map[string]string // connID -> userID
	order    []string          // userIDs by first connection
}

// NewTracker builds a Tracker. metrics may be nil.
func NewTracker(resolver Resolver, log *slog.Logger, metrics *Metrics) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		resolver: resolver,
		log:      log,
		metrics:  metrics,
		conns:    make(map[string]map[string]struct{}),
		profiles: make(map[string]session.Profile),
		owners:   make(map[string]string),
	}
}

// AddConnectedUser records connID as a live connection of userID. The profile
// is resolved before the registry is locked. A connID that is already
// registered is a no-op; the profile snippet is refreshed either way.
func (t *Tracker) AddConnectedUser(ctx context.Context, userID, connID string) error {
	userID, connID = strings.TrimSpace(userID), strings.TrimSpace(connID)
	if userID == "" || connID == "" {
		return ErrInvalidInput
	}

	acct, err := t.resolver.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if owner, ok := t.owners[connID]; ok && owner != userID {
		t.log.Warn("presence.conn.reused", slog.String("conn_id", connID), slog.String("owner", owner))
		return ErrInvalidInput
	}

	set, ok := t.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[userID] = set
		t.order = append(t.order, userID)
	}
	set[connID] = struct{}{}
	t.owners[connID] = userID
	t.profiles[userID] = acct.Profile

	t.observe()
	return nil
}

// RemoveConnectedUser drops connID. It reports the owning user and whether
// the connection was known. The user is evicted once no connection remains.
func (t *Tracker) RemoveConnectedUser(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	userID, ok := t.owners[connID]
	if !ok {
		return "", false
	}
	delete(t.owners, connID)

	set := t.conns[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(t.conns, userID)
		delete(t.profiles, userID)
		for i, id := range t.order {
			if id == userID {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}

	t.observe()
	return userID, true
}

// ConnectedUsers returns every user with at least one live connection,
// ordered by when the user first connected.
func (t *Tracker) ConnectedUsers() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, Entry{ID: id, Profile: t.profiles[id]})
	}
	return out
}

// IsOnline reports whether userID has a live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.conns[userID]
	return ok
}

// Connections returns the number of live connections of userID.
func (t *Tracker) Connections(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[userID])
}

// observe must be called with t.mu held.
func (t *Tracker) observe() {
	t.metrics.set(len(t.conns), len(t.owners))
}
