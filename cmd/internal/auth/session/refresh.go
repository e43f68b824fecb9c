package session

import (
	"context"
	"log/slog"

	"linkup/cmd/identity"
)

// RefreshToken exchanges the current refresh token for a new access token.
// The refresh token itself is not rotated; it stays valid until it expires or
// a later login or registration replaces it.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (AccessToken, error) {
	const op = "refresh"
	now := s.now()

	claims, err := s.tokens.VerifyRefresh(refreshToken, now)
	if err != nil {
		s.reject(op, ErrInvalidToken)
		return AccessToken{}, ErrInvalidToken
	}

	var acct identity.Account
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.accounts.AccountByID(ctx, claims.AccountID)
		return err
	})
	switch {
	case identity.IsNotFound(err):
		s.reject(op, ErrInvalidToken)
		return AccessToken{}, ErrInvalidToken
	case err != nil:
		s.log.Error("auth.refresh.fail", slog.String("step", "lookup"), slog.Any("err", err))
		return AccessToken{}, ErrStoreUnavailable
	}

	if acct.RefreshTokenHash == nil || !s.refresh.Matches(*acct.RefreshTokenHash, refreshToken) {
		s.reject(op, ErrInvalidToken)
		return AccessToken{}, ErrInvalidToken
	}

	access, exp, err := s.tokens.IssueAccess(acct.ID, now)
	if err != nil {
		s.log.Error("auth.refresh.fail", slog.String("step", "sign"), slog.Any("err", err))
		return AccessToken{}, ErrStoreUnavailable
	}
	s.mirrorAccess(ctx, acct.ID, access)

	s.metrics.attempt(op, "ok")
	return AccessToken{Token: access, ExpiresAt: exp}, nil
}
