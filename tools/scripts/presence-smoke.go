// Package main provides a CI-friendly smoke test for LinkUp auth and presence.
//
// It validates:
//   - register (or login when the account exists) over HTTP
//   - handshake + subprotocol selection with a bearer token
//   - hello/ack session establishment
//   - presence snapshot fanout on connect and disconnect
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	v1 "linkup/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeUser struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type smokeClient struct {
	name   string
	conn   *websocket.Conn
	userID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "LinkUp base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		suffix  = flag.String("suffix", fmt.Sprintf("%d", time.Now().Unix()%100000), "Suffix for generated usernames")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := wsURLFor(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	ana := smokeUser{FirstName: "Ana", LastName: "Lee", Username: "analee" + *suffix, Email: "ana+" + *suffix + "@example.com", Password: "Secr3t!23"}
	bob := smokeUser{FirstName: "Bob", LastName: "Ray", Username: "bobray" + *suffix, Email: "bob+" + *suffix + "@example.com", Password: "Secr3t!23"}

	anaToken := mustAccessToken(root, *baseURL, ana, *timeout)
	bobToken := mustAccessToken(root, *baseURL, bob, *timeout)

	a := mustConnect(root, "A", wsURL, *origin, anaToken, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", wsURL, *origin, bobToken, *timeout)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.userID, b.userID, *origin)
	}

	a.mustSnapshotWith(root, *timeout, a.userID, b.userID)

	closeWS(b.conn)
	a.mustSnapshotWith(root, *timeout, a.userID)

	fmt.Printf("OK: A=%s B=%s\n", a.userID, b.userID)
}

func wsURLFor(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// mustAccessToken registers u, falling back to login on 409.
func mustAccessToken(parent context.Context, baseURL string, u smokeUser, stepTimeout time.Duration) string {
	code, body := mustPost(parent, baseURL+"/auth/register", u, stepTimeout)
	if code == http.StatusConflict {
		code, body = mustPost(parent, baseURL+"/auth/login", map[string]string{
			"email":    u.Email,
			"password": u.Password,
		}, stepTimeout)
	}
	if code != http.StatusOK && code != http.StatusCreated {
		fatalf("auth %s: status=%d body=%s", u.Username, code, body)
	}

	var pair struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &pair); err != nil || pair.AccessToken == "" {
		fatalf("auth %s: missing access token: %v", u.Username, err)
	}
	return pair.AccessToken
}

func mustPost(parent context.Context, target string, v any, stepTimeout time.Duration) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(mustJSON(v)))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		fatalf("read %s: %v", target, err)
	}
	return resp.StatusCode, buf.Bytes()
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	hello := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeHello,
		ID:      fmt.Sprintf("%s-hello", name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.HelloPayload{}),
	}
	mustWriteWithTimeout(parent, conn, hello, stepTimeout)

	skip := map[string]struct{}{v1.TypePresenceSnapshot: {}}
	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, skip)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.UserID) == "" {
		fatalf("hello_ack missing user_id (%s)", name)
	}
	c.userID = p.UserID

	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustSnapshotWith reads snapshots until one lists exactly want, in any order.
func (c *smokeClient) mustSnapshotWith(parent context.Context, stepTimeout time.Duration, want ...string) {
	slices.Sort(want)
	deadline := time.Now().Add(stepTimeout)

	for time.Now().Before(deadline) {
		env := c.mustReadUntilType(parent, v1.TypePresenceSnapshot, time.Until(deadline), nil)

		var p v1.PresenceSnapshotPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			fatalf("unmarshal snapshot (%s): %v", c.name, err)
		}
		got := make([]string, 0, len(p.Users))
		for _, u := range p.Users {
			got = append(got, u.ID)
		}
		slices.Sort(got)
		if slices.Equal(got, want) {
			return
		}
	}
	fatalf("no snapshot with users %v (%s)", want, c.name)
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, mustJSON(env)); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
