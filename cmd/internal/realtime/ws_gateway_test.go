package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"linkup/cmd/internal/auth/session"
	"linkup/cmd/internal/presence"
	v1 "linkup/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuth treats the token as the account id, except "bad".
type stubAuth struct{}

func (stubAuth) ValidateAccessToken(_ context.Context, raw string) (session.AccessClaims, error) {
	if raw == "bad" {
		return session.AccessClaims{}, session.ErrInvalidToken
	}
	return session.AccessClaims{AccountID: raw}, nil
}

type stubResolver struct {
	mu       sync.Mutex
	profiles map[string]session.Profile
}

func (r *stubResolver) FindByID(_ context.Context, id string) (session.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return session.Account{}, session.ErrNotFound
	}
	return session.Account{ID: id, Profile: p}, nil
}

type gatewayFixture struct {
	srv     *httptest.Server
	tracker *presence.Tracker
	hub     *Hub
}

func newGatewayFixture(t *testing.T, mutate ...func(*Config)) *gatewayFixture {
	t.Helper()
	return newGatewayFixtureWith(t, nil, mutate...)
}

// newGatewayFixtureWith lets wrap replace the Presence the gateway sees.
func newGatewayFixtureWith(t *testing.T, wrap func(*presence.Tracker) Presence, mutate ...func(*Config)) *gatewayFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tracker := presence.NewTracker(&stubResolver{profiles: map[string]session.Profile{
		"ana":  {FirstName: "Ana", LastName: "Lee", Username: "analee"},
		"bob":  {FirstName: "Bob", LastName: "Ray", Username: "bobray"},
		"carl": {FirstName: "Carl", LastName: "Oh", Username: "carloh"},
	}}, log, nil)
	var p Presence = tracker
	if wrap != nil {
		p = wrap(tracker)
	}

	cfg := DefaultConfig()
	cfg.OriginRequired = false
	for _, m := range mutate {
		m(&cfg)
	}
	hub := NewHub(log)
	gw := NewWSGateway(log, cfg, hub, stubAuth{}, p)

	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return &gatewayFixture{srv: srv, tracker: tracker, hub: hub}
}

func (f *gatewayFixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.srv.URL, "http"), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
}

func (f *gatewayFixture) mustDial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(t, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readEnv(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	env, err := readEnvelope(ctx, conn)
	require.NoError(t, err)
	return env
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	for i := 0; i < 5; i++ {
		env := readEnv(t, conn)
		if env.Type != v1.TypePresenceSnapshot {
			continue
		}
		var p v1.PresenceSnapshotPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		ids := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			ids = append(ids, u.ID)
		}
		return ids
	}
	t.Fatalf("no presence snapshot received")
	return nil
}

func sendEnv(t *testing.T, conn *websocket.Conn, typ string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, writeEnvelope(ctx, conn, newEnvelope(typ, json.RawMessage(`{}`), time.Now().UTC()), time.Second))
}

func TestWSGateway_RejectsMissingAndInvalidTokens(t *testing.T) {
	f := newGatewayFixture(t)

	for _, token := range []string{"", "bad"} {
		_, resp, err := f.dial(t, token)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestWSGateway_RejectsForeignOrigin(t *testing.T) {
	f := newGatewayFixture(t, func(c *Config) { c.OriginRequired = true })

	_, resp, err := f.dial(t, "ana")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWSGateway_UnknownUserIsClosed(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.mustDial(t, "ghost")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Empty(t, f.tracker.ConnectedUsers())
}

func TestWSGateway_PresenceLifecycle(t *testing.T) {
	f := newGatewayFixture(t)

	ana := f.mustDial(t, "ana")
	assert.Equal(t, []string{"ana"}, readSnapshot(t, ana))

	bob := f.mustDial(t, "bob")
	assert.Equal(t, []string{"ana", "bob"}, readSnapshot(t, bob))
	assert.Equal(t, []string{"ana", "bob"}, readSnapshot(t, ana))
	assert.True(t, f.tracker.IsOnline("bob"))

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))
	assert.Equal(t, []string{"ana"}, readSnapshot(t, ana))
	assert.False(t, f.tracker.IsOnline("bob"))

	sendEnv(t, ana, v1.TypePresenceFetch)
	assert.Equal(t, []string{"ana"}, readSnapshot(t, ana))
}

func TestWSGateway_SameUserTwoConnections(t *testing.T) {
	f := newGatewayFixture(t)

	first := f.mustDial(t, "ana")
	readSnapshot(t, first)
	second := f.mustDial(t, "ana")
	assert.Equal(t, []string{"ana"}, readSnapshot(t, second))

	require.NoError(t, second.Close(websocket.StatusNormalClosure, "bye"))
	assert.Equal(t, []string{"ana"}, readSnapshot(t, first))
	assert.True(t, f.tracker.IsOnline("ana"))
}

func TestWSGateway_HelloAndErrors(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.mustDial(t, "ana")
	readSnapshot(t, conn)

	sendEnv(t, conn, v1.TypeHello)
	env := readEnv(t, conn)
	require.Equal(t, v1.TypeHelloAck, env.Type)
	var ack v1.HelloAckPayload
	require.NoError(t, json.Unmarshal(env.Payload, &ack))
	assert.Equal(t, "ana", ack.UserID)
	assert.NotEmpty(t, ack.ConnectionID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{nope")))
	env = readEnv(t, conn)
	require.Equal(t, v1.TypeError, env.Type)
	var p v1.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "bad_json", p.Code)
}

func TestWSGateway_RateLimitClosesConnection(t *testing.T) {
	f := newGatewayFixture(t, func(c *Config) {
		c.RateEvents = 2
		c.RateWindow = time.Minute
	})
	conn := f.mustDial(t, "ana")
	readSnapshot(t, conn)

	for i := 0; i < 3; i++ {
		sendEnv(t, conn, v1.TypePresenceFetch)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var err error
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Eventually(t, func() bool { return !f.tracker.IsOnline("ana") }, 2*time.Second, 10*time.Millisecond)
}

func TestWSGateway_BadJSONCountsAgainstRateLimit(t *testing.T) {
	f := newGatewayFixture(t, func(c *Config) {
		c.RateEvents = 2
		c.RateWindow = time.Minute
	})
	conn := f.mustDial(t, "ana")
	readSnapshot(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{")))
	}

	var err error
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

// slowSnapshots stalls one ConnectedUsers call after reading the tracker.
type slowSnapshots struct {
	*presence.Tracker

	delayNext atomic.Bool
	started   chan struct{}
}

func (s *slowSnapshots) ConnectedUsers() []presence.Entry {
	entries := s.Tracker.ConnectedUsers()
	if s.delayNext.CompareAndSwap(true, false) {
		close(s.started)
		time.Sleep(300 * time.Millisecond)
	}
	return entries
}

func TestWSGateway_SnapshotsArriveInOrder(t *testing.T) {
	slow := &slowSnapshots{started: make(chan struct{})}
	f := newGatewayFixtureWith(t, func(tr *presence.Tracker) Presence {
		slow.Tracker = tr
		return slow
	})

	ana := f.mustDial(t, "ana")
	assert.Equal(t, []string{"ana"}, readSnapshot(t, ana))
	bob := f.mustDial(t, "bob")
	assert.Equal(t, []string{"ana", "bob"}, readSnapshot(t, ana))

	slow.delayNext.Store(true)
	f.mustDial(t, "carl")
	select {
	case <-slow.started:
	case <-time.After(3 * time.Second):
		t.Fatal("connect snapshot never taken")
	}
	_ = bob.CloseNow()

	assert.Equal(t, []string{"ana", "bob", "carl"}, readSnapshot(t, ana))
	assert.Equal(t, []string{"ana", "carl"}, readSnapshot(t, ana))
}

func TestOriginPatterns(t *testing.T) {
	got := deriveOriginPatternsFromAllowedOrigins([]string{"http://LOCALHOST:3000", "https://app.linkup.dev", "*", "localhost"})
	assert.Equal(t, []string{"app.linkup.dev", "localhost"}, got)
}
