package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/internal/cache"
	"linkup/cmd/internal/graph"
	"linkup/cmd/security/fieldcipher"
	"linkup/cmd/security/password"
	"linkup/cmd/security/token"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// Reconciler receives accounts whose cleanup could not be completed inline.
type Reconciler interface {
	EnqueuePurge(ctx context.Context, accountID, reason string) error
}

// Deps are the collaborators of a Service. Accounts and Graph are required.
type Deps struct {
	Accounts   identity.Store
	Graph      graph.Mirror
	Cache      cache.Store
	Reconciler Reconciler
	Passwords  password.Config
	Logger     *slog.Logger
	Metrics    *Metrics
	Now        func() time.Time
}

// Service is the session authority.
type Service struct {
	cfg Config

	accounts   identity.Store
	graph      graph.Mirror
	cache      cache.Store
	reconciler Reconciler

	cipher    *fieldcipher.Cipher
	passwords password.Config
	tokens    *JWTManager
	refresh   token.Hasher
	validate  *validator.Validate

	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time

	loads singleflight.Group

	// dummyEmail is decrypted on the unknown-account login path.
	dummyEmail string
}

// NewService validates cfg and builds the authority. Any key problem is ErrConfig.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Accounts == nil || deps.Graph == nil {
		return nil, fmt.Errorf("%w: account store and graph mirror are required", ErrConfig)
	}

	cipher, err := fieldcipher.New(cfg.EncryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	tokens, err := NewJWTManager(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := token.NewHasher(cfg.TokenHMACKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	dummy, err := cipher.Encrypt("nobody@linkup.invalid")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	s := &Service{
		cfg:        cfg,
		accounts:   deps.Accounts,
		graph:      deps.Graph,
		cache:      deps.Cache,
		reconciler: deps.Reconciler,
		cipher:     cipher,
		passwords:  deps.Passwords,
		tokens:     tokens,
		refresh:    hasher,
		validate:   newValidator(),
		log:        deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
		dummyEmail: dummy,
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.passwords == (password.Config{}) {
		s.passwords = password.DefaultConfig()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Profile is the decrypted, cacheable part of an account.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
}

// Account is the externally visible view of an account.
type Account struct {
	ID string `json:"id"`
	Profile
}

// TokenPair is returned by Register and Login.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AccessToken is returned by RefreshToken.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// check runs struct validation and converts the result into *ValidationError.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"_": "invalid input"}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return "is invalid"
	}
}

// sealProfile encrypts each profile field with a fresh nonce.
func (s *Service) sealProfile(p Profile) (first, last, user string, err error) {
	if first, err = s.cipher.Encrypt(p.FirstName); err != nil {
		return "", "", "", err
	}
	if last, err = s.cipher.Encrypt(p.LastName); err != nil {
		return "", "", "", err
	}
	if user, err = s.cipher.Encrypt(p.Username); err != nil {
		return "", "", "", err
	}
	return first, last, user, nil
}

func (s *Service) openProfile(a identity.Account) (Profile, error) {
	var (
		p   Profile
		err error
	)
	if p.FirstName, err = s.cipher.Decrypt(a.FirstName); err != nil {
		return Profile{}, err
	}
	if p.LastName, err = s.cipher.Decrypt(a.LastName); err != nil {
		return Profile{}, err
	}
	if p.Username, err = s.cipher.Decrypt(a.Username); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// cacheProfile writes the user:{id} snippet.
func (s *Service) cacheProfile(ctx context.Context, id string, p Profile) error {
	return cache.SetJSON(ctx, s.cache, cache.ProfileKey(id), p, s.cfg.ProfileCacheTTL)
}

// emailLookup returns the normalized email and its deterministic envelope.
func (s *Service) emailLookup(email string) (norm, hash string, err error) {
	norm = identity.NormalizeEmail(email)
	hash, err = s.cipher.DeterministicEncrypt(norm)
	return norm, hash, err
}
