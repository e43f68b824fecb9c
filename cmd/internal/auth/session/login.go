package session

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"linkup/cmd/identity"
)

// LoginInput is the login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Login verifies credentials and issues a token pair.
//
// Unknown email, wrong password and an email envelope that does not decrypt
// back to the supplied address all return ErrInvalidCredentials after the
// same amount of hashing and decryption work.
func (s *Service) Login(ctx context.Context, in LoginInput) (TokenPair, error) {
	const op = "login"

	if err := s.check(in); err != nil {
		s.reject(op, err)
		return TokenPair{}, err
	}

	norm, emailHash, err := s.emailLookup(in.Email)
	if err != nil {
		s.log.Error("auth.login.fail", slog.String("step", "encrypt"), slog.Any("err", err))
		return TokenPair{}, ErrEncryption
	}

	var acct identity.Account
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		acct, err = s.accounts.AccountByEmailHash(ctx, emailHash)
		return err
	})
	switch {
	case identity.IsNotFound(err):
		s.passwords.DummyVerify(in.Password)
		_, _ = s.cipher.Decrypt(s.dummyEmail)
		s.reject(op, ErrInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	case err != nil:
		s.log.Error("auth.login.fail", slog.String("step", "lookup"), slog.Any("err", err))
		return TokenPair{}, ErrStoreUnavailable
	}

	pwOK, err := s.passwords.Verify(acct.PasswordHash, in.Password)
	if err != nil {
		s.log.Error("auth.login.hash.corrupt", slog.String("account_id", acct.ID), slog.Any("err", err))
		pwOK = false
	}
	plain, derr := s.cipher.Decrypt(acct.EmailHash)
	emailOK := derr == nil && subtle.ConstantTimeCompare([]byte(plain), []byte(norm)) == 1

	if !pwOK || !emailOK {
		s.reject(op, ErrInvalidCredentials)
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, acct.ID, s.now())
	if err != nil {
		s.log.Error("auth.login.fail", slog.String("step", "tokens"), slog.Any("err", err))
		return TokenPair{}, storeFailure(err)
	}

	s.metrics.attempt(op, "ok")
	s.log.Info("auth.login", slog.String("state", "committed"), slog.String("account_id", acct.ID))
	return pair, nil
}
