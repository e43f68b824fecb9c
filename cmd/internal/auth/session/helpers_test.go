package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/internal/cache"
	"linkup/cmd/internal/graph"
	"linkup/cmd/security/password"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var errDown = identity.Fail("test", identity.FaultUnavailable, errors.New("store down"))

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSecret = strings.Repeat("a", 32)
	cfg.RefreshSecret = strings.Repeat("r", 32)
	cfg.EncryptionKeyHex = testKeyHex
	cfg.TokenHMACKey = strings.Repeat("h", 32)
	cfg.StoreRetryBase = time.Millisecond
	return cfg
}

func fastPasswords() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func anaInput() RegisterInput {
	return RegisterInput{
		FirstName: "Ana",
		LastName:  "Lee",
		Username:  "analee",
		Email:     "ana@example.com",
		Password:  "Secr3t!23",
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeAccounts wraps MemoryStore with fault injection.
type fakeAccounts struct {
	*identity.MemoryStore

	mu          sync.Mutex
	deleteErr   error
	setHashErr  error
	lookupErr   error
	tamperEmail bool

	// byIDGate, when set, holds AccountByID until it is closed.
	byIDGate    chan struct{}
	byIDEntered chan struct{}
	byIDCalls   int
}

func (f *fakeAccounts) AccountByID(ctx context.Context, id string) (identity.Account, error) {
	f.mu.Lock()
	f.byIDCalls++
	gate, entered := f.byIDGate, f.byIDEntered
	f.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return identity.Account{}, identity.Fail("test.AccountByID", identity.FaultUnavailable, ctx.Err())
		}
	}
	return f.MemoryStore.AccountByID(ctx, id)
}

func (f *fakeAccounts) set(fn func(f *fakeAccounts)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAccounts) DeleteAccount(ctx context.Context, id string) error {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.DeleteAccount(ctx, id)
}

func (f *fakeAccounts) SetRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error {
	f.mu.Lock()
	err := f.setHashErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.SetRefreshTokenHash(ctx, id, hash, now)
}

func (f *fakeAccounts) AccountByEmailHash(ctx context.Context, emailHash string) (identity.Account, error) {
	f.mu.Lock()
	lookupErr, tamper := f.lookupErr, f.tamperEmail
	f.mu.Unlock()
	if lookupErr != nil {
		return identity.Account{}, lookupErr
	}
	a, err := f.MemoryStore.AccountByEmailHash(ctx, emailHash)
	if err == nil && tamper {
		last := a.EmailHash[len(a.EmailHash)-1]
		flipped := byte('0')
		if last == '0' {
			flipped = '1'
		}
		a.EmailHash = a.EmailHash[:len(a.EmailHash)-1] + string(flipped)
	}
	return a, err
}

type fakeMirror struct {
	*graph.MemoryMirror

	mu        sync.Mutex
	createErr error
	deleteErr error
}

func (m *fakeMirror) CreateNode(ctx context.Context, accountID, emailHash string) error {
	m.mu.Lock()
	err := m.createErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryMirror.CreateNode(ctx, accountID, emailHash)
}

func (m *fakeMirror) DeleteNode(ctx context.Context, accountID string) error {
	m.mu.Lock()
	err := m.deleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryMirror.DeleteNode(ctx, accountID)
}

type failingCache struct {
	cache.Store
	setErr error
}

func (c failingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.Store.Set(ctx, key, value, ttl)
}

// switchCache fails Set and Delete on demand.
type switchCache struct {
	cache.Store

	mu     sync.Mutex
	setErr error
	delErr error
}

func (c *switchCache) fail(setErr, delErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErr, c.delErr = setErr, delErr
}

func (c *switchCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	err := c.setErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Store.Set(ctx, key, value, ttl)
}

func (c *switchCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	err := c.delErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Store.Delete(ctx, keys...)
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type purge struct{ accountID, reason string }

type fakeReconciler struct {
	mu     sync.Mutex
	purges []purge
}

func (r *fakeReconciler) EnqueuePurge(_ context.Context, accountID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purges = append(r.purges, purge{accountID, reason})
	return nil
}

func (r *fakeReconciler) all() []purge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]purge(nil), r.purges...)
}

type fixture struct {
	svc      *Service
	accounts *fakeAccounts
	graph    *fakeMirror
	redis    *miniredis.Miniredis
	recon    *fakeReconciler
	clock    *clock
	metrics  *Metrics
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		accounts: &fakeAccounts{MemoryStore: identity.NewMemoryStore()},
		graph:    &fakeMirror{MemoryMirror: graph.NewMemoryMirror()},
		redis:    mr,
		recon:    &fakeReconciler{},
		clock:    &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}

	deps := Deps{
		Accounts:   f.accounts,
		Graph:      f.graph,
		Cache:      cache.NewRedisStore(client),
		Reconciler: f.recon,
		Passwords:  fastPasswords(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    f.metrics,
		Now:        f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewService(testConfig(), deps)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// accountID extracts the subject of an access token.
func (f *fixture) accountID(t *testing.T, access string) string {
	t.Helper()
	claims, err := f.svc.tokens.VerifyAccess(access, f.clock.Now())
	require.NoError(t, err)
	return claims.AccountID
}

func (f *fixture) register(t *testing.T, in RegisterInput) (TokenPair, string) {
	t.Helper()
	pair, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	return pair, f.accountID(t, pair.AccessToken)
}
