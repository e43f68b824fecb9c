package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/identity/ids"
	"linkup/cmd/internal/cache"
)

const sharedLoadTimeout = 10 * time.Second

// FindByID resolves an account, cache first. On a miss it reads the record
// store, decrypts the profile and repopulates the cache. Concurrent misses
// for the same id share one store read. Ids that are not ULIDs are never looked up.
func (s *Service) FindByID(ctx context.Context, id string) (Account, error) {
	if !ids.Valid(id) {
		return Account{}, ErrNotFound
	}

	p, ok, err := cache.GetJSON[Profile](ctx, s.cache, cache.ProfileKey(id))
	if err != nil {
		s.log.Warn("auth.cache.profile.read.fail", slog.String("account_id", id), slog.Any("err", err))
	}
	if ok {
		return Account{ID: id, Profile: p}, nil
	}

	// The shared load outlives any single caller; each caller still gives up
	// on its own ctx.
	ch := s.loads.DoChan(id, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return s.loadAccount(lctx, id)
	})
	select {
	case <-ctx.Done():
		return Account{}, ErrStoreUnavailable
	case res := <-ch:
		if res.Err != nil {
			return Account{}, res.Err
		}
		return res.Val.(Account), nil
	}
}

func (s *Service) loadAccount(ctx context.Context, id string) (Account, error) {
	var acct identity.Account
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.accounts.AccountByID(ctx, id)
		return err
	})
	if err != nil {
		if !identity.IsNotFound(err) {
			s.log.Error("auth.find.fail", slog.String("account_id", id), slog.Any("err", err))
		}
		return Account{}, storeFailure(err)
	}

	p, err := s.openProfile(acct)
	if err != nil {
		s.log.Error("auth.find.decrypt.fail", slog.String("account_id", id), slog.Any("err", err))
		return Account{}, ErrDecryption
	}

	if err := s.cacheProfile(ctx, id, p); err != nil {
		s.log.Warn("auth.cache.profile.write.fail", slog.String("account_id", id), slog.Any("err", err))
	}
	return Account{ID: id, Profile: p}, nil
}

// ValidateAccessToken verifies an access token and checks that its subject
// still exists.
func (s *Service) ValidateAccessToken(ctx context.Context, raw string) (AccessClaims, error) {
	claims, err := s.tokens.VerifyAccess(raw, s.now())
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	if _, err := s.FindByID(ctx, claims.AccountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessClaims{}, ErrInvalidToken
		}
		return AccessClaims{}, err
	}
	return claims, nil
}

// ProfileInput is a partial profile update; nil fields are unchanged.
type ProfileInput struct {
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,min=1,max=64"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,min=1,max=64"`
	Username  *string `json:"username,omitempty" validate:"omitempty,min=3,max=32,alphanum"`
}

// UpdateProfile re-encrypts the supplied fields, persists them and refreshes
// the cached snippet. An empty update returns the current profile.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (Account, error) {
	if err := s.check(in); err != nil {
		return Account{}, err
	}
	if in.FirstName == nil && in.LastName == nil && in.Username == nil {
		return s.FindByID(ctx, id)
	}

	var upd identity.ProfileUpdate
	for _, f := range []struct {
		src *string
		dst **string
	}{
		{in.FirstName, &upd.FirstName},
		{in.LastName, &upd.LastName},
		{in.Username, &upd.Username},
	} {
		if f.src == nil {
			continue
		}
		sealed, err := s.cipher.Encrypt(*f.src)
		if err != nil {
			s.log.Error("auth.update.encrypt.fail", slog.String("account_id", id), slog.Any("err", err))
			return Account{}, ErrEncryption
		}
		*f.dst = &sealed
	}

	var acct identity.Account
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.accounts.UpdateProfile(ctx, id, upd, s.now())
		return err
	})
	if err != nil {
		if !identity.IsNotFound(err) {
			s.log.Error("auth.update.fail", slog.String("account_id", id), slog.Any("err", err))
		}
		return Account{}, storeFailure(err)
	}

	p, err := s.openProfile(acct)
	if err != nil {
		s.log.Error("auth.update.decrypt.fail", slog.String("account_id", id), slog.Any("err", err))
		return Account{}, ErrDecryption
	}
	if err := s.cacheProfile(ctx, id, p); err != nil {
		// A stale snippet would outlive the update, so drop it instead.
		s.log.Warn("auth.cache.profile.write.fail", slog.String("account_id", id), slog.Any("err", err))
		if err := s.cache.Delete(ctx, cache.ProfileKey(id)); err != nil {
			s.log.Error("auth.cache.profile.evict.fail",
				slog.String("account_id", id),
				slog.Duration("stale_for", s.cfg.ProfileCacheTTL),
				slog.Any("err", err),
			)
		}
	}
	return Account{ID: id, Profile: p}, nil
}

// Deletion confirms a deleted account.
type Deletion struct {
	ID        string
	DeletedAt time.Time
}

// DeleteAccount removes the account row, then its graph node and cache
// entries. Once the row is gone the deletion has happened; leftovers in the
// graph or cache are handed to the reconciler.
func (s *Service) DeleteAccount(ctx context.Context, id string) (Deletion, error) {
	err := s.withRetry(ctx, func(ctx context.Context) error { return s.accounts.DeleteAccount(ctx, id) })
	if err != nil {
		if !identity.IsNotFound(err) {
			s.log.Error("auth.delete.fail", slog.String("account_id", id), slog.Any("err", err))
		}
		return Deletion{}, storeFailure(err)
	}
	s.loads.Forget(id)

	var leftovers []string
	err = s.withRetry(ctx, func(ctx context.Context) error { return s.graph.DeleteNode(ctx, id) })
	if err != nil && !identity.IsNotFound(err) {
		leftovers = append(leftovers, "graph")
		s.log.Error("auth.delete.graph.fail", slog.String("account_id", id), slog.Any("err", err))
	}
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.cache.Delete(ctx, cache.ProfileKey(id), cache.AccessKey(id))
	})
	if err != nil {
		leftovers = append(leftovers, "cache")
		s.log.Error("auth.delete.cache.fail", slog.String("account_id", id), slog.Any("err", err))
	}
	if len(leftovers) > 0 {
		s.enqueuePurge(context.WithoutCancel(ctx), id, fmt.Sprintf("delete:%v", leftovers))
	}

	s.metrics.attempt("delete", "ok")
	s.log.Info("auth.delete", slog.String("account_id", id))
	return Deletion{ID: id, DeletedAt: s.now()}, nil
}
