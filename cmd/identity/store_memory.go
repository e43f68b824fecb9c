package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"linkup/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development and tests.
// The email hash index gives it the same uniqueness guarantee as Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]Account
	byEmail map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, Fail(op, FaultOf(err), err)
	}
	if msg := in.validate(); msg != "" {
		return Account{}, Fail(op, FaultOther, fmt.Errorf("%w: %s", ErrInvalidInput, msg))
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id := in.ID
	if id == "" {
		var err error
		if id, err = ids.New(now); err != nil {
			return Account{}, Fail(op, FaultOther, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[in.EmailHash]; taken {
		return Account{}, &StoreError{Op: op, Fault: FaultUniqueViolation, Field: "email_hash"}
	}
	if _, taken := s.byID[id]; taken {
		return Account{}, &StoreError{Op: op, Fault: FaultUniqueViolation, Field: "id"}
	}

	a := Account{
		ID:           id,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		EmailHash:    in.EmailHash,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[id] = a
	s.byEmail[in.EmailHash] = id
	return a, nil
}

func (s *MemoryStore) AccountByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.AccountByID"

	if err := ctx.Err(); err != nil {
		return Account{}, Fail(op, FaultOf(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, Fail(op, FaultNotFound, nil)
	}
	return cloneAccount(a), nil
}

func (s *MemoryStore) AccountByEmailHash(ctx context.Context, emailHash string) (Account, error) {
	const op = "identity.AccountByEmailHash"

	if err := ctx.Err(); err != nil {
		return Account{}, Fail(op, FaultOf(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailHash]
	if !ok {
		return Account{}, Fail(op, FaultNotFound, nil)
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *MemoryStore) SetRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.SetRefreshTokenHash"

	if err := ctx.Err(); err != nil {
		return Fail(op, FaultOf(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Fail(op, FaultNotFound, nil)
	}
	a.RefreshTokenHash = &hash
	a.UpdatedAt = now
	s.byID[id] = a
	return nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, in ProfileUpdate, now time.Time) (Account, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return Account{}, Fail(op, FaultOf(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Account{}, Fail(op, FaultNotFound, nil)
	}
	if in.Username != nil {
		a.Username = *in.Username
	}
	if in.FirstName != nil {
		a.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		a.LastName = *in.LastName
	}
	a.UpdatedAt = now
	s.byID[id] = a
	return cloneAccount(a), nil
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, id string) error {
	const op = "identity.DeleteAccount"

	if err := ctx.Err(); err != nil {
		return Fail(op, FaultOf(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return Fail(op, FaultNotFound, nil)
	}
	delete(s.byID, id)
	delete(s.byEmail, a.EmailHash)
	return nil
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func cloneAccount(a Account) Account {
	if a.RefreshTokenHash != nil {
		h := *a.RefreshTokenHash
		a.RefreshTokenHash = &h
	}
	return a
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
