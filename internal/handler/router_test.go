package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"chatclient/internal/app/session"
	"chatclient/internal/app/store"
	"chatclient/internal/app/transport"
	"chatclient/internal/configs"
	"chatclient/internal/pkg/errs"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type bridge struct {
	manager *session.Manager
	handler http.Handler
	cancel  context.CancelFunc
}

func newBridge(t *testing.T, mutate func(*configs.AppConfig)) *bridge {
	t.Helper()

	cfg := configs.Default()
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 1000
	if mutate != nil {
		mutate(cfg)
	}

	reg := prometheus.NewRegistry()
	m := session.NewManager(transport.NewLoopback(), store.NewMemory(), session.Config{Registerer: reg})

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	hub := NewStateHub(m)
	go hub.Run(ctx)

	deps := &AppDeps{Session: m, Config: cfg, Gatherer: reg}

	b := &bridge{manager: m, handler: Router(ctx, deps, hub), cancel: cancel}
	t.Cleanup(func() {
		cancel()
		m.Close()
	})
	return b
}

func (b *bridge) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, r)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode envelope: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w.Code, env
}

func (b *bridge) waitConnected(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.manager.Snapshot().ConnectionStatus != session.Connected {
		if time.Now().After(deadline) {
			t.Fatalf("session never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	b := newBridge(t, nil)

	status, env := b.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("health = %d %+v", status, env)
	}
}

func TestLoginSendAndState(t *testing.T) {
	b := newBridge(t, nil)

	_, env := b.do(t, http.MethodPost, "/api/login", `{"name":"Alice"}`)
	if env.Code != 0 {
		t.Fatalf("login = %+v", env)
	}
	b.waitConnected(t)

	_, env = b.do(t, http.MethodPost, "/api/messages", `{"text":"hello bridge"}`)
	if env.Code != 0 {
		t.Fatalf("send = %+v", env)
	}

	_, env = b.do(t, http.MethodGet, "/api/state", "")
	if env.Code != 0 {
		t.Fatalf("state = %+v", env)
	}

	var st struct {
		Messages []struct {
			Text string `json:"text"`
		} `json:"messages"`
		CurrentUser struct {
			Name string `json:"name"`
		} `json:"currentUser"`
		ConnectionStatus string `json:"connectionStatus"`
	}
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}

	if st.CurrentUser.Name != "Alice" || st.ConnectionStatus != "connected" {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(st.Messages) != 1 || st.Messages[0].Text != "hello bridge" {
		t.Fatalf("messages = %+v", st.Messages)
	}

	_, env = b.do(t, http.MethodPost, "/api/typing", `{"isTyping":true}`)
	if env.Code != 0 {
		t.Fatalf("typing = %+v", env)
	}

	_, env = b.do(t, http.MethodPost, "/api/logout", "")
	if env.Code != 0 {
		t.Fatalf("logout = %+v", env)
	}
	if b.manager.Snapshot().CurrentUser != nil {
		t.Fatalf("still logged in after logout")
	}
}

func TestRejectedActionsReportCodes(t *testing.T) {
	b := newBridge(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"blank name", http.MethodPost, "/api/login", `{"name":"   "}`, errs.ErrInvalidUsername},
		{"send before login", http.MethodPost, "/api/messages", `{"text":"hi"}`, errs.ErrNotLoggedIn},
		{"empty message", http.MethodPost, "/api/messages", `{"text":"  "}`, errs.ErrMessageEmpty},
		{"typing before login", http.MethodPost, "/api/typing", `{"isTyping":true}`, errs.ErrNotLoggedIn},
		{"logout before login", http.MethodPost, "/api/logout", "", errs.ErrNotLoggedIn},
		{"unknown field", http.MethodPost, "/api/login", `{"nick":"Alice"}`, errs.ErrInvalidJSONFormat},
		{"trailing data", http.MethodPost, "/api/login", `{"name":"Alice"} {}`, errs.ErrExtraContentInBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env := b.do(t, tt.method, tt.path, tt.body)
			if env.Code != tt.want {
				t.Fatalf("code = %d (%s); want %d", env.Code, env.Message, tt.want)
			}
		})
	}
}

func TestSendTooLong(t *testing.T) {
	b := newBridge(t, nil)

	body, _ := json.Marshal(SendMessageInput{Text: strings.Repeat("a", MaxMessageBytes+1)})
	_, env := b.do(t, http.MethodPost, "/api/messages", string(body))

	if env.Code != errs.ErrMessageContentTooLong {
		t.Fatalf("code = %d; want %d", env.Code, errs.ErrMessageContentTooLong)
	}
	if !strings.Contains(env.Message, "4000") {
		t.Fatalf("message %q should name the limit", env.Message)
	}
}

func TestSendAfterSessionClosed(t *testing.T) {
	b := newBridge(t, nil)
	b.do(t, http.MethodPost, "/api/login", `{"name":"Alice"}`)
	b.waitConnected(t)

	// a manager that stopped reports the session as closed
	b.manager.Close()

	_, env := b.do(t, http.MethodPost, "/api/messages", `{"text":"hi"}`)
	if env.Code != errs.ErrSessionClosed {
		t.Fatalf("code = %d; want %d", env.Code, errs.ErrSessionClosed)
	}
}

func TestUnsupportedMediaType(t *testing.T) {
	b := newBridge(t, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"name":"Alice"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d; want 415", w.Code)
	}
}

func TestAPIRateLimit(t *testing.T) {
	b := newBridge(t, func(c *configs.AppConfig) {
		c.RateLimit.RPS = 0.001
		c.RateLimit.Burst = 1
	})

	if status, _ := b.do(t, http.MethodGet, "/api/state", ""); status != http.StatusOK {
		t.Fatalf("first request status = %d", status)
	}

	status, env := b.do(t, http.MethodGet, "/api/state", "")
	if status != http.StatusTooManyRequests || env.Code != errs.ErrRateLimitExceeded {
		t.Fatalf("second request = %d %+v; want 429", status, env)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	b := newBridge(t, nil)
	b.do(t, http.MethodPost, "/api/login", `{"name":"Alice"}`)
	b.waitConnected(t)
	b.do(t, http.MethodPost, "/api/messages", `{"text":"count me"}`)

	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, r)

	body := w.Body.String()
	for _, name := range []string{"chatclient_messages_sent_total 1", "chatclient_connection_status 2"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %q:\n%s", name, body)
		}
	}
}

func TestStateStream(t *testing.T) {
	b := newBridge(t, nil)

	srv := httptest.NewServer(b.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first session.State
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.CurrentUser != nil {
		t.Fatalf("initial snapshot has a user: %+v", first.CurrentUser)
	}

	b.do(t, http.MethodPost, "/api/login", `{"name":"Alice"}`)

	for {
		var raw struct {
			CurrentUser *struct {
				Name string `json:"name"`
			} `json:"currentUser"`
			ConnectionStatus string `json:"connectionStatus"`
		}
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if raw.CurrentUser != nil && raw.CurrentUser.Name == "Alice" && raw.ConnectionStatus == "connected" {
			return
		}
	}
}
