package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Wyydra/callrelay/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callrelay/internal/adapter/driven/negotiation/pion"
	"github.com/Wyydra/callrelay/internal/adapter/driven/registry/memory"
	handler "github.com/Wyydra/callrelay/internal/adapter/driving/http"
	"github.com/Wyydra/callrelay/internal/config"
	"github.com/Wyydra/callrelay/internal/core/domain"
	"github.com/Wyydra/callrelay/internal/core/service"
)

type frame struct {
	Type     string          `json:"type"`
	From     string          `json:"from"`
	Identity string          `json:"identity"`
	ConnID   string          `json:"connId"`
	Payload  json.RawMessage `json:"payload"`
	Code     string          `json:"code"`
	Target   string          `json:"target"`
}

type relay struct {
	srv *httptest.Server
	hub *ws.Hub
	svc *service.SignalingService
}

func newRelay(t *testing.T, mutate func(*config.Config), opts ...service.Option) *relay {
	t.Helper()
	cfg := config.Default()
	cfg.StaticDir = ""
	if mutate != nil {
		mutate(&cfg)
	}

	svc := service.NewSignalingService(memory.NewRegistry(), opts...)
	hub := ws.NewHub()
	go hub.Run()

	h := handler.NewHandler(svc, hub, cfg)
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return &relay{srv: srv, hub: hub, svc: svc}
}

func (r *relay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (r *relay) join(t *testing.T, identity string) *websocket.Conn {
	t.Helper()
	c := r.dial(t)
	write(t, c, map[string]any{"type": "join", "identity": identity})
	f := read(t, c)
	if f.Type != "joined" || f.Identity != identity {
		t.Fatalf("join %s: got %+v", identity, f)
	}
	if _, err := domain.ConnIDFromString(f.ConnID); err != nil {
		t.Fatalf("join %s: connId %q: %v", identity, f.ConnID, err)
	}
	return c
}

func write(t *testing.T, c *websocket.Conn, msg any) {
	t.Helper()
	if err := c.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return f
}

// expectSilence leaves c unreadable afterwards.
func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := c.ReadMessage(); err == nil {
		t.Fatalf("unexpected frame %s", msg)
	}
}

func TestOfferAnswerOverWebSocket(t *testing.T) {
	r := newRelay(t, nil)
	alice := r.join(t, "alice")
	bob := r.join(t, "bob")

	write(t, alice, map[string]any{"type": "offer", "target": "bob", "payload": map[string]string{"type": "offer", "sdp": "P1"}})
	got := read(t, bob)
	if got.Type != "offer" || got.From != "alice" || got.Target != "" {
		t.Fatalf("bob got %+v", got)
	}
	var p map[string]string
	if err := json.Unmarshal(got.Payload, &p); err != nil || p["sdp"] != "P1" {
		t.Fatalf("payload = %s (%v)", got.Payload, err)
	}

	write(t, bob, map[string]any{"type": "answer", "target": "alice", "payload": map[string]string{"type": "answer", "sdp": "P2"}})
	got = read(t, alice)
	if got.Type != "answer" || got.From != "bob" {
		t.Fatalf("alice got %+v", got)
	}
}

func TestTargetNotFoundOverWebSocket(t *testing.T) {
	r := newRelay(t, nil)
	alice := r.join(t, "alice")

	write(t, alice, map[string]any{"type": "offer", "target": "carol", "payload": "x"})
	got := read(t, alice)
	if got.Type != "error" || got.Code != "target_not_found" || got.Target != "carol" {
		t.Fatalf("alice got %+v", got)
	}
}

func TestDuplicateJoinRejected(t *testing.T) {
	r := newRelay(t, nil)
	r.join(t, "alice")

	other := r.dial(t)
	write(t, other, map[string]any{"type": "join", "identity": "alice"})
	if got := read(t, other); got.Type != "error" || got.Code != "already_registered" {
		t.Fatalf("got %+v", got)
	}
}

func TestBadFramesReported(t *testing.T) {
	r := newRelay(t, nil)
	c := r.dial(t)

	if err := c.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if got := read(t, c); got.Code != "bad_request" {
		t.Fatalf("got %+v", got)
	}

	write(t, c, map[string]any{"type": "offer", "target": "bob", "payload": "x"})
	if got := read(t, c); got.Code != "not_joined" {
		t.Fatalf("got %+v", got)
	}

	write(t, c, map[string]any{"type": "dance"})
	if got := read(t, c); got.Code != "bad_request" {
		t.Fatalf("got %+v", got)
	}
}

func TestCandidatesFlushedAfterAnswer(t *testing.T) {
	r := newRelay(t, nil)
	alice := r.join(t, "alice")
	bob := r.join(t, "bob")

	write(t, alice, map[string]any{"type": "offer", "target": "bob", "payload": "o"})
	if got := read(t, bob); got.Type != "offer" {
		t.Fatalf("bob got %+v", got)
	}

	// the original client's event name is accepted as well
	write(t, alice, map[string]any{"type": "ice-candidate", "target": "bob", "candidate": "c1"})
	write(t, alice, map[string]any{"type": "candidate", "target": "bob", "payload": "c2"})
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, ok := r.svc.Session("alice", "bob")
		if ok && info.Pending["alice"] == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("candidates not buffered: %+v", info)
		}
		time.Sleep(5 * time.Millisecond)
	}

	write(t, bob, map[string]any{"type": "answer", "target": "alice", "payload": "a"})
	if got := read(t, alice); got.Type != "answer" {
		t.Fatalf("alice got %+v", got)
	}
	for _, want := range []string{`"c1"`, `"c2"`} {
		got := read(t, bob)
		if got.Type != "candidate" || string(got.Payload) != want {
			t.Fatalf("bob got %+v, want candidate %s", got, want)
		}
	}
}

func TestDisconnectSynthesizesEndOfCall(t *testing.T) {
	r := newRelay(t, nil)
	alice := r.join(t, "alice")
	bob := r.join(t, "bob")

	write(t, alice, map[string]any{"type": "offer", "target": "bob", "payload": "o"})
	read(t, bob)
	write(t, bob, map[string]any{"type": "answer", "target": "alice", "payload": "a"})
	read(t, alice)

	_ = bob.Close()

	got := read(t, alice)
	if got.Type != "end_of_call" || got.From != "bob" {
		t.Fatalf("alice got %+v", got)
	}

	r.join(t, "bob")
}

func TestEndOfCallForwardedOnce(t *testing.T) {
	r := newRelay(t, nil)
	alice := r.join(t, "alice")
	bob := r.join(t, "bob")

	write(t, alice, map[string]any{"type": "offer", "target": "bob", "payload": "o"})
	read(t, bob)

	write(t, alice, map[string]any{"type": "call-ended", "target": "bob"})
	write(t, alice, map[string]any{"type": "end_of_call", "target": "bob"})

	if got := read(t, bob); got.Type != "end_of_call" || got.From != "alice" {
		t.Fatalf("bob got %+v", got)
	}
	expectSilence(t, bob)
	expectSilence(t, alice)
}

func TestPayloadValidation(t *testing.T) {
	r := newRelay(t, func(c *config.Config) { c.ValidatePayloads = true }, service.WithPayloadValidator(pion.NewValidator()))
	alice := r.join(t, "alice")
	r.join(t, "bob")

	write(t, alice, map[string]any{"type": "offer", "target": "bob", "payload": map[string]string{"type": "offer", "sdp": "nonsense"}})
	if got := read(t, alice); got.Code != "invalid_payload" {
		t.Fatalf("alice got %+v", got)
	}
}

func TestHealthAndIdentities(t *testing.T) {
	r := newRelay(t, func(c *config.Config) {
		c.ICEServers = config.ParseICEServers("stun:stun.example:3478")
	})
	r.join(t, "bob")
	r.join(t, "alice")

	resp, err := http.Get(r.srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var health struct {
		Status         string   `json:"status"`
		ConnectedUsers []string `json:"connectedUsers"`
		Connections    int      `json:"connections"`
		Sessions       int      `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || len(health.ConnectedUsers) != 2 || health.ConnectedUsers[0] != "alice" || health.Sessions != 0 {
		t.Fatalf("health = %+v", health)
	}

	resp2, err := http.Get(r.srv.URL + "/identities")
	if err != nil {
		t.Fatalf("GET /identities: %v", err)
	}
	defer resp2.Body.Close()
	var ids struct {
		Identities []string `json:"identities"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&ids); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ids.Identities) != 2 {
		t.Fatalf("identities = %v", ids.Identities)
	}

	resp3, err := http.Get(r.srv.URL + "/ice-servers")
	if err != nil {
		t.Fatalf("GET /ice-servers: %v", err)
	}
	defer resp3.Body.Close()
	var ice struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	if err := json.NewDecoder(resp3.Body).Decode(&ice); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ice.ICEServers) != 1 || ice.ICEServers[0].URLs[0] != "stun:stun.example:3478" {
		t.Fatalf("ice servers = %+v", ice)
	}
}

func TestOriginAllowList(t *testing.T) {
	r := newRelay(t, func(c *config.Config) { c.AllowedOrigins = []string{"https://app.example"} })
	wsURL := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		t.Fatalf("dial from disallowed origin succeeded")
	}

	header.Set("Origin", "https://app.example")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	_ = c.Close()
}

func getWithOrigin(t *testing.T, method, url, origin string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCORSOnHTTPEndpoints(t *testing.T) {
	r := newRelay(t, func(c *config.Config) { c.AllowedOrigins = []string{"https://app.example"} })

	for _, p := range []string{"/ice-servers", "/health", "/identities"} {
		resp := getWithOrigin(t, http.MethodGet, r.srv.URL+p, "https://app.example")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", p, resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Fatalf("GET %s: Access-Control-Allow-Origin = %q", p, got)
		}
	}

	resp := getWithOrigin(t, http.MethodOptions, r.srv.URL+"/ice-servers", "https://app.example")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("preflight: Access-Control-Allow-Origin = %q", got)
	}

	resp = getWithOrigin(t, http.MethodGet, r.srv.URL+"/ice-servers", "https://evil.example")
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin: Access-Control-Allow-Origin = %q", got)
	}
}

func TestStaticFallsBackToIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r := newRelay(t, func(c *config.Config) { c.StaticDir = dir })

	body := func(p string) string {
		t.Helper()
		resp, err := http.Get(r.srv.URL + p)
		if err != nil {
			t.Fatalf("GET %s: %v", p, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", p, resp.StatusCode)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		return string(b)
	}

	if got := body("/app.js"); got != "console.log(1)" {
		t.Fatalf("/app.js = %q", got)
	}
	if got := body("/rooms/42"); got != "<html>app</html>" {
		t.Fatalf("/rooms/42 = %q", got)
	}
	if got := body("/health"); !strings.Contains(got, `"status":"ok"`) {
		t.Fatalf("/health = %q", got)
	}
}
