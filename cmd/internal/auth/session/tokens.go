package session

import (
	"fmt"
	"time"

	"linkup/cmd/identity/ids"

	"github.com/golang-jwt/jwt/v5"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// AccessClaims is the identity envelope propagated to HTTP and WS handlers.
type AccessClaims struct {
	AccountID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"typ"`
}

// JWTManager issues and verifies HS256 access and refresh tokens.
type JWTManager struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	skew       time.Duration
	accessKey  []byte
	refreshKey []byte
}

// NewJWTManager builds a manager from cfg.
func NewJWTManager(cfg Config) (*JWTManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: jwt secrets and ttls are required", ErrConfig)
	}
	return &JWTManager{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		skew:       cfg.ClockSkew,
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
	}, nil
}

// IssueAccess signs a short-lived access token for accountID.
func (m *JWTManager) IssueAccess(accountID string, now time.Time) (string, time.Time, error) {
	return m.issue(kindAccess, m.accessKey, m.accessTTL, accountID, now)
}

// IssueRefresh signs a refresh token for accountID. Every token carries a
// fresh jti, so two refresh tokens never share a digest.
func (m *JWTManager) IssueRefresh(accountID string, now time.Time) (string, time.Time, error) {
	return m.issue(kindRefresh, m.refreshKey, m.refreshTTL, accountID, now)
}

// VerifyAccess checks signature, issuer, kind and expiry in one step.
func (m *JWTManager) VerifyAccess(raw string, now time.Time) (AccessClaims, error) {
	return m.verify(kindAccess, m.accessKey, raw, now)
}

// VerifyRefresh is VerifyAccess for refresh tokens.
func (m *JWTManager) VerifyRefresh(raw string, now time.Time) (AccessClaims, error) {
	return m.verify(kindRefresh, m.refreshKey, raw, now)
}

func (m *JWTManager) issue(kind string, key []byte, ttl time.Duration, accountID string, now time.Time) (string, time.Time, error) {
	jti, err := ids.New(now)
	if err != nil {
		return "", time.Time{}, err
	}

	exp := now.Add(ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   accountID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Kind: kind,
	})

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *JWTManager) verify(kind string, key []byte, raw string, now time.Time) (AccessClaims, error) {
	if raw == "" || len(raw) > 4096 {
		return AccessClaims{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var c tokenClaims
	tok, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil || !tok.Valid || c.Kind != kind || c.Subject == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{AccountID: c.Subject, TokenID: c.ID}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
