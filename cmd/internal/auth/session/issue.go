package session

import (
	"context"
	"log/slog"
	"time"

	"linkup/cmd/internal/cache"
)

// issueTokens signs a new pair, stores the refresh digest (replacing any
// previous one) and mirrors the access token into the cache.
func (s *Service) issueTokens(ctx context.Context, accountID string, now time.Time) (TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(accountID, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(accountID, now)
	if err != nil {
		return TokenPair{}, err
	}

	digest := s.refresh.Hash(refresh)
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.accounts.SetRefreshTokenHash(ctx, accountID, digest, now)
	})
	if err != nil {
		return TokenPair{}, err
	}

	s.mirrorAccess(ctx, accountID, access)

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// mirrorAccess writes access:{id}. The cache is advisory, so a failure is only logged.
func (s *Service) mirrorAccess(ctx context.Context, accountID, access string) {
	if err := s.cache.Set(ctx, cache.AccessKey(accountID), access, s.cfg.AccessTokenTTL); err != nil {
		s.log.Warn("auth.cache.access.fail", slog.String("account_id", accountID), slog.Any("err", err))
	}
}
