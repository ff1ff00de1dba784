package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatclient/internal/app/chat"
	"chatclient/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time to wait for a Pong (or any frame) from the server.
	pongWait = 60 * time.Second

	// frequency at which the client sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame pushed by the server.
	maxFrameSize = 1 << 20

	// capacity of the inbound and outbound queues.
	queueSize = 256
)

// Websocket dials a chat server over gorilla/websocket.
type Websocket struct {
	// URL is the server endpoint, e.g. ws://localhost:8080/ws.
	URL string

	// Dialer is used to open connections. nil means websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Header is sent with the handshake request.
	Header http.Header
}

// NewWebsocket returns a Websocket transport for serverURL.
func NewWebsocket(serverURL string) *Websocket {
	return &Websocket{URL: serverURL}
}

// Dial opens a websocket to w.URL with userId and userName query parameters.
func (w *Websocket) Dial(ctx context.Context, userID, userName string) (Conn, error) {
	target, err := url.Parse(w.URL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	query := target.Query()
	query.Set("userId", userID)
	query.Set("userName", userName)
	target.RawQuery = query.Encode()

	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, httpResp, err := dialer.DialContext(ctx, target.String(), w.Header)
	if err != nil {
		if httpResp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", w.URL, err, httpResp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", w.URL, err)
	}

	c := &wsConn{
		conn:   ws,
		events: make(chan chat.Event, queueSize),
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
		logger: logx.Component("transport").With().
			Str("user_id", userID).
			Str("server", w.URL).
			Logger(),
	}

	c.events <- chat.ConnectEvent()

	go c.writePump()
	go c.readPump()

	return c, nil
}

// wsConn is one websocket connection with a read pump and a write pump.
type wsConn struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// decoded server pushes, closed when readPump exits.
	events chan chat.Event

	// encoded frames waiting to be written.
	send chan []byte

	// closed by Close to stop both pumps.
	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func (c *wsConn) Events() <-chan chat.Event {
	return c.events
}

func (c *wsConn) Emit(ev chat.Event) error {
	frame, err := chat.Encode(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping frame")
		return ErrSendQueueFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// deliver hands ev to the consumer unless the connection was closed locally.
func (c *wsConn) deliver(ev chat.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// readPump reads frames until the connection fails, then reports a disconnect.
func (c *wsConn) readPump() {
	var cause error

	defer func() {
		c.deliver(chat.DisconnectEvent(cause))
		close(c.events)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		cause = err
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly")
			}
			cause = err
			return
		}

		ev, err := chat.Decode(data)
		if err != nil {
			c.logger.Warn().Err(err).Int("frame_bytes", len(data)).Msg("Server sent undecodable frame")
			continue
		}

		// connect and disconnect are produced locally, never taken from the wire.
		if ev.Type == chat.EventConnect || ev.Type == chat.EventDisconnect {
			continue
		}

		if !c.deliver(ev) {
			return
		}
	}
}

// writePump writes queued frames and keeps the heartbeat going.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Debug().Err(err).Msg("Connection close error in writePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}

		case <-c.done:
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed")
			if err := c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to send close frame")
			}
			return
		}
	}
}
