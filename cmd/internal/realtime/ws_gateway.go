package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"linkup/cmd/internal/auth/session"
	"linkup/cmd/internal/presence"
	v1 "linkup/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3

	// presenceTimeout bounds profile resolution when a connection opens.
	presenceTimeout = 5 * time.Second
)

// Authenticator verifies bearer access tokens. session.Service satisfies it.
type Authenticator interface {
	ValidateAccessToken(ctx context.Context, raw string) (session.AccessClaims, error)
}

// Presence is the connection registry the gateway reports to.
type Presence interface {
	AddConnectedUser(ctx context.Context, userID, connID string) error
	RemoveConnectedUser(connID string) (string, bool)
	ConnectedUsers() []presence.Entry
	Connections(userID string) int
}

// WSGateway is the WebSocket entrypoint for LinkUp realtime.
//
// It authenticates the upgrade request, enforces origin policy, subprotocol
// selection, rate limits and heartbeats, and keeps the presence registry in
// step with open connections. Every presence change is broadcast to all
// connected clients as a presence_snapshot.
type WSGateway struct {
	log      *slog.Logger
	hub      *Hub
	auth     Authenticator
	presence Presence
	cfg      Config

	// presenceMu orders snapshot reads with their delivery so clients
	// never receive an older snapshot after a newer one.
	presenceMu sync.Mutex

	// Derived for websocket.Accept origin checks, which only authorize
	// cross-origin requests that match OriginPatterns.
	originPatterns []string
}

// NewWSGateway constructs a gateway. A nil hub gets a fresh one.
func NewWSGateway(log *slog.Logger, cfg Config, hub *Hub, auth Authenticator, p Presence) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	cfg = cfg.normalized()
	return &WSGateway{
		log:            log,
		hub:            hub,
		auth:           auth,
		presence:       p,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates and upgrades an HTTP request, then runs the
// connection until either side closes it.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	raw := bearerToken(r)
	if raw == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := g.auth.ValidateAccessToken(r.Context(), raw)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			g.log.Warn("ws.reject.auth.unavailable", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		g.log.Info("ws.reject.auth", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	userID := claims.AccountID

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID := NewConnectionID()
	log := g.log.With(slog.String("conn_id", connID), slog.String("user_id", userID))

	addCtx, addCancel := context.WithTimeout(r.Context(), presenceTimeout)
	err = g.presence.AddConnectedUser(addCtx, userID, connID)
	addCancel()
	if err != nil {
		if errors.Is(err, presence.ErrNotFound) {
			log.Info("ws.reject.presence", "err", err)
			_ = conn.Close(websocket.StatusPolicyViolation, "unknown user")
			return
		}
		log.Error("ws.presence.add.fail", "err", err)
		_ = conn.Close(websocket.StatusTryAgainLater, "presence unavailable")
		return
	}

	client := NewClient(userID, connID, g.cfg.SendQueueSize)
	g.hub.Register(client)
	g.broadcastPresence()
	log.Info("ws.connect", "user_connections", g.presence.Connections(userID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It removes the connection from presence before
	// the snapshot is broadcast, and never closes client.Send.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unregister(connID)
			if _, ok := g.presence.RemoveConnectedUser(connID); ok {
				g.broadcastPresence()
			}
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
			log.Info("ws.disconnect", "reason", reason)
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				// counted against the rate limit below
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now().UTC()) {
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err != nil {
			g.trySendError(client, "bad_json", "invalid JSON")
			continue readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			ack, _ := json.Marshal(v1.HelloAckPayload{ConnectionID: connID, UserID: userID})
			if !client.TrySend(newEnvelope(v1.TypeHelloAck, ack, time.Now().UTC())) {
				shutdown(websocket.StatusPolicyViolation, "backpressure")
				break readLoop
			}

		case v1.TypePresenceFetch:
			if !g.sendPresence(client) {
				g.trySendError(client, "backpressure", "presence snapshot dropped")
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- presence ----

func (g *WSGateway) presenceSnapshot() v1.Envelope {
	entries := g.presence.ConnectedUsers()
	users := make([]v1.PresenceUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, v1.PresenceUser{
			ID:        e.ID,
			FirstName: e.Profile.FirstName,
			LastName:  e.Profile.LastName,
			Username:  e.Profile.Username,
		})
	}
	p, _ := json.Marshal(v1.PresenceSnapshotPayload{Users: users})
	return newEnvelope(v1.TypePresenceSnapshot, p, time.Now().UTC())
}

func (g *WSGateway) broadcastPresence() {
	g.presenceMu.Lock()
	defer g.presenceMu.Unlock()
	g.hub.Broadcast(g.presenceSnapshot())
}

func (g *WSGateway) sendPresence(c *Client) bool {
	g.presenceMu.Lock()
	defer g.presenceMu.Unlock()
	return c.TrySend(g.presenceSnapshot())
}

// ---- send helpers ----

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	_ = client.TrySend(newEnvelope(v1.TypeError, p, time.Now().UTC()))
}

// bearerToken reads "Authorization: Bearer <t>", falling back to ?token= for
// browsers, which cannot set headers on a websocket handshake.
func bearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match ignores port and scheme.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins turns the allowlist into the host
// patterns websocket.Accept matches against, so both checks agree.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
