package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/internal/auth/session"
	"linkup/cmd/internal/cache"
	"linkup/cmd/internal/graph"
	"linkup/cmd/internal/presence"
	"linkup/cmd/security/password"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	srv      *httptest.Server
	svc      *session.Service
	tracker  *presence.Tracker
	accounts *identity.MemoryStore
}

func newAPIFixture(t *testing.T, mutate ...func(*Config)) *apiFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := session.DefaultConfig()
	cfg.AccessSecret = strings.Repeat("a", 32)
	cfg.RefreshSecret = strings.Repeat("r", 32)
	cfg.EncryptionKeyHex = strings.Repeat("0f", 32)
	cfg.TokenHMACKey = strings.Repeat("h", 32)

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	accounts := identity.NewMemoryStore()
	svc, err := session.NewService(cfg, session.Deps{
		Accounts:  accounts,
		Graph:     graph.NewMemoryMirror(),
		Cache:     cache.NewRedisStore(rdb),
		Passwords: pw,
		Logger:    log,
		Metrics:   session.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	tracker := presence.NewTracker(svc, log, nil)

	apiCfg := DefaultConfig()
	for _, m := range mutate {
		m(&apiCfg)
	}
	srv := httptest.NewServer(NewHandler(log, apiCfg, svc, tracker).Routes())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, svc: svc, tracker: tracker, accounts: accounts}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if raw, _ := io.ReadAll(resp.Body); len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

var ana = map[string]string{
	"firstName": "Ana",
	"lastName":  "Lee",
	"username":  "analee",
	"email":     "ana@example.com",
	"password":  "Secr3t!23",
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAPI_AccountLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodPost, "/auth/register", "", ana)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	resp, body = f.do(t, http.MethodPost, "/auth/register", "", ana)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "account_exists", errorCode(body))

	resp, body = f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "Secr3t!23"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access, _ = body["accessToken"].(string)
	refresh, _ = body["refreshToken"].(string)

	resp, body = f.do(t, http.MethodGet, "/user/info", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "Ana", user["firstName"])
	assert.Equal(t, "analee", user["username"])

	resp, body = f.do(t, http.MethodPatch, "/user/update", access, map[string]string{"lastName": "Lee-Park"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, _ = body["user"].(map[string]any)
	assert.Equal(t, "Lee-Park", user["lastName"])

	resp, body = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])

	resp, body = f.do(t, http.MethodDelete, "/user/delete", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, 0, f.accounts.Len())

	resp, body = f.do(t, http.MethodGet, "/user/info", access, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", errorCode(body))
}

func TestAPI_LoginFailuresAreUniform(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/auth/register", "", ana)

	respA, bodyA := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "nope-nope"})
	respB, bodyB := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "lee@example.com", "password": "Secr3t!23"})

	assert.Equal(t, http.StatusUnauthorized, respA.StatusCode)
	assert.Equal(t, respA.StatusCode, respB.StatusCode)
	assert.Equal(t, bodyA, bodyB)
}

func TestAPI_ValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "nope"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(body))
	fields, _ := body["error"].(map[string]any)["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "firstName")

	resp, body = f.do(t, http.MethodPost, "/auth/register", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", errorCode(body))

	resp, body = f.do(t, http.MethodPost, "/auth/login", "", `{"email":"a@b.co","password":"x","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", errorCode(body))

	resp, body = f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorCode(body))
}

func TestAPI_RequiresBearer(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/user/info", "/presence"} {
		resp, body := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "unauthorized", errorCode(body))

		resp, _ = f.do(t, http.MethodGet, path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp, body := f.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_token", errorCode(body))
}

func TestAPI_Presence(t *testing.T) {
	f := newAPIFixture(t)
	_, body := f.do(t, http.MethodPost, "/auth/register", "", ana)
	access, _ := body["accessToken"].(string)

	claims, err := f.svc.ValidateAccessToken(context.Background(), access)
	require.NoError(t, err)
	require.NoError(t, f.tracker.AddConnectedUser(context.Background(), claims.AccountID, "c1"))

	resp, body := f.do(t, http.MethodGet, "/presence", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users, _ := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "analee", users[0].(map[string]any)["username"])

	resp, body = f.do(t, http.MethodGet, "/presence/"+claims.AccountID, access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["online"])

	f.tracker.RemoveConnectedUser("c1")
	_, body = f.do(t, http.MethodGet, "/presence/"+claims.AccountID, access, nil)
	assert.Equal(t, false, body["online"])
}

func TestAPI_AuthRateLimit(t *testing.T) {
	f := newAPIFixture(t, func(c *Config) {
		c.AuthRateLimit = 2
		c.AuthRateWindow = time.Minute
	})

	creds := map[string]string{"email": "ana@example.com", "password": "Secr3t!23"}
	f.do(t, http.MethodPost, "/auth/login", "", creds)
	f.do(t, http.MethodPost, "/auth/login", "", creds)
	resp, body := f.do(t, http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", errorCode(body))
}
