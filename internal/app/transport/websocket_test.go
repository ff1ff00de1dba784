package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatclient/internal/app/chat"
	"chatclient/internal/app/user"
)

// newEchoServer starts a websocket server that greets with a roster, pushes one junk frame,
// echoes every frame back, and hangs up when it receives a message with text "bye".
func newEchoServer(t *testing.T, gotQuery chan<- string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.Query().Get("userId") + "|" + r.URL.Query().Get("userName")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		roster, _ := chat.Encode(chat.UsersEvent([]user.User{{ID: "u1", Name: "Alice", Online: true}}))
		_ = conn.WriteMessage(websocket.TextMessage, roster)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"garbage"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"disconnect"}`))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ev, err := chat.Decode(data)
			if err != nil {
				t.Errorf("server decode: %v", err)
				return
			}
			if ev.Type == chat.EventMessage && ev.Message.Text == "bye" {
				return
			}
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func nextEvent(t *testing.T, events <-chan chat.Event) chat.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("event stream closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return chat.Event{}
}

func TestWebsocketRoundTrip(t *testing.T) {
	queries := make(chan string, 1)
	srv := newEchoServer(t, queries)

	conn, err := NewWebsocket(wsURL(srv)).Dial(context.Background(), "u1", "Alice Liddell")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if q := <-queries; q != "u1|Alice Liddell" {
		t.Fatalf("server saw query %q", q)
	}

	if ev := nextEvent(t, conn.Events()); ev.Type != chat.EventConnect {
		t.Fatalf("first event = %s; want connect", ev.Type)
	}

	ev := nextEvent(t, conn.Events())
	if ev.Type != chat.EventUsers || len(ev.Users) != 1 || ev.Users[0].Name != "Alice" {
		t.Fatalf("expected roster push; got %+v", ev)
	}

	msg := chat.Message{ID: "m1", Text: "hi", SenderID: "u1", Timestamp: 10}
	if err := conn.Emit(chat.MessageEvent(msg)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	// junk and wire-level disconnect frames are skipped, so the echo is next.
	ev = nextEvent(t, conn.Events())
	if ev.Type != chat.EventMessage || ev.Message != msg {
		t.Fatalf("expected echo of %+v; got %+v", msg, ev)
	}

	if err := conn.Emit(chat.TypingEvent("u1", true)); err != nil {
		t.Fatalf("Emit typing: %v", err)
	}
	ev = nextEvent(t, conn.Events())
	if ev.Type != chat.EventTyping || ev.Typing.UserID != "u1" || !ev.Typing.IsTyping {
		t.Fatalf("expected typing echo; got %+v", ev)
	}
}

func TestWebsocketServerHangupYieldsDisconnect(t *testing.T) {
	queries := make(chan string, 1)
	srv := newEchoServer(t, queries)

	conn, err := NewWebsocket(wsURL(srv)).Dial(context.Background(), "u2", "Bob")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	<-queries

	nextEvent(t, conn.Events()) // connect
	nextEvent(t, conn.Events()) // users

	if err := conn.Emit(chat.MessageEvent(chat.Message{ID: "m", Text: "bye", SenderID: "u2"})); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	ev := nextEvent(t, conn.Events())
	if ev.Type != chat.EventDisconnect || ev.Err == nil {
		t.Fatalf("expected disconnect with cause; got %+v", ev)
	}

	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Fatalf("expected closed stream after disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event stream not closed")
	}
}

func TestWebsocketEmitAfterClose(t *testing.T) {
	queries := make(chan string, 1)
	srv := newEchoServer(t, queries)

	conn, err := NewWebsocket(wsURL(srv)).Dial(context.Background(), "u3", "Cy")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	<-queries

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := conn.Emit(chat.TypingEvent("u3", false)); err != ErrClosed {
		t.Fatalf("Emit after close = %v; want ErrClosed", err)
	}
}

func TestWebsocketDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := NewWebsocket(wsURL(srv)).Dial(ctx, "u", "n"); err == nil {
		t.Fatalf("expected dial error against non-websocket endpoint")
	}
}
