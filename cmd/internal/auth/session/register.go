package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"linkup/cmd/identity"
	"linkup/cmd/internal/cache"
	"linkup/cmd/security/password"
)

// RegisterInput is the registration request.
type RegisterInput struct {
	FirstName string `json:"firstName" validate:"required,max=64"`
	LastName  string `json:"lastName" validate:"required,max=64"`
	Username  string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
}

// Register creates an account across the record store, the graph mirror and
// the cache, then issues a token pair. Failures after validation undo every
// completed step and surface as ErrRegistrationFailed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (TokenPair, error) {
	const op = "register"

	if err := s.check(in); err != nil {
		s.reject(op, err)
		return TokenPair{}, err
	}
	if err := s.passwords.Validate(in.Password); err != nil {
		err = invalidField("password", passwordMessage(err))
		s.reject(op, err)
		return TokenPair{}, err
	}

	now := s.now()
	profile := Profile{FirstName: in.FirstName, LastName: in.LastName, Username: in.Username}

	pwHash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return TokenPair{}, s.registrationFailed(err, "hash")
	}
	first, last, user, err := s.sealProfile(profile)
	if err != nil {
		return TokenPair{}, s.registrationFailed(fmt.Errorf("%w: %v", ErrEncryption, err), "encrypt")
	}
	_, emailHash, err := s.emailLookup(in.Email)
	if err != nil {
		return TokenPair{}, s.registrationFailed(fmt.Errorf("%w: %v", ErrEncryption, err), "encrypt")
	}

	// The unique email_hash constraint is the single serialization point for
	// concurrent registrations of the same email.
	acct, err := s.accounts.CreateAccount(ctx, identity.NewAccount{
		Username:     user,
		FirstName:    first,
		LastName:     last,
		EmailHash:    emailHash,
		PasswordHash: pwHash,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			s.reject(op, ErrAccountExists)
			return TokenPair{}, ErrAccountExists
		}
		return TokenPair{}, s.registrationFailed(err, "insert")
	}

	g := &saga{accountID: acct.ID}
	g.done("account", func(ctx context.Context) error { return s.accounts.DeleteAccount(ctx, acct.ID) })

	err = s.withRetry(ctx, func(ctx context.Context) error {
		err := s.graph.CreateNode(ctx, acct.ID, emailHash)
		// A retried create may find the node it created on the attempt that timed out.
		if identity.IsConflict(err) {
			return nil
		}
		return err
	})
	if err != nil {
		s.rollback(ctx, g, "graph")
		return TokenPair{}, s.registrationFailed(err, "graph")
	}
	g.done("graph", func(ctx context.Context) error { return s.graph.DeleteNode(ctx, acct.ID) })

	err = s.withRetry(ctx, func(ctx context.Context) error { return s.cacheProfile(ctx, acct.ID, profile) })
	if err != nil {
		s.rollback(ctx, g, "cache")
		return TokenPair{}, s.registrationFailed(err, "cache")
	}
	g.done("cache", func(ctx context.Context) error {
		return s.cache.Delete(ctx, cache.ProfileKey(acct.ID), cache.AccessKey(acct.ID))
	})

	pair, err := s.issueTokens(ctx, acct.ID, now)
	if err != nil {
		s.rollback(ctx, g, "tokens")
		return TokenPair{}, s.registrationFailed(err, "tokens")
	}

	s.metrics.attempt(op, "committed")
	s.log.Info("auth.register",
		slog.String("state", "committed"),
		slog.String("account_id", acct.ID),
	)
	return pair, nil
}

// registrationFailed logs the cause and returns the caller-facing error.
func (s *Service) registrationFailed(cause error, step string) error {
	s.metrics.attempt("register", "failed")
	s.log.Error("auth.register.fail",
		slog.String("state", "failed"),
		slog.String("step", step),
		slog.Any("err", cause),
	)
	if identity.IsUnavailable(cause) {
		return errors.Join(ErrRegistrationFailed, ErrStoreUnavailable)
	}
	return ErrRegistrationFailed
}

func (s *Service) reject(op string, err error) {
	s.metrics.attempt(op, "rejected")
	s.log.Info("auth."+op,
		slog.String("state", "rejected"),
		slog.String("reason", err.Error()),
	)
}

func passwordMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "is too short"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "is too long"
	case errors.Is(err, password.ErrWeakPassword):
		return "is too weak"
	default:
		return "is invalid"
	}
}
