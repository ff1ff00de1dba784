/*
Package handler provides the HTTP handler function for the state stream.

HandleStateStream upgrades the connection to WebSocket and keeps the presentation client
updated with a full session snapshot after every change. The stream is one-way: inbound
frames other than control frames are read and discarded.
*/
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatclient/internal/pkg/errs"
	"chatclient/internal/pkg/limiter"
	"chatclient/internal/pkg/logx"
	"chatclient/internal/pkg/resp"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong from the presentation client.
	pongWait = 60 * time.Second

	// frequency at which Pings are sent.
	pingPeriod = (pongWait * 9) / 10

	// maximum size of an inbound frame; clients have nothing to say on this stream.
	maxInboundSize = 512
)

// stateStream is one connected presentation client.
type stateStream struct {
	conn *websocket.Conn

	// send queues encoded snapshots. The hub closes it on unregister.
	send chan []byte

	logger zerolog.Logger
}

// HandleStateStream creates an HTTP HandlerFunc serving GET /ws/state.
func HandleStateStream(hub *StateHub, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("State stream rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		s := &stateStream{
			conn:   conn,
			send:   make(chan []byte, streamBuffer),
			logger: *zerolog.Ctx(r.Context()),
		}

		if !hub.Subscribe(s) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		s.logger.Info().Msg("State stream connected")

		go s.writePump()
		s.readPump(hub)
	}
}

// readPump keeps the read side alive for pongs and close frames, and unregisters on exit.
func (s *stateStream) readPump(hub *StateHub) {
	defer func() {
		hub.Unsubscribe(s)
		s.logger.Info().Msg("State stream disconnected")
	}()

	s.conn.SetReadLimit(maxInboundSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("State stream read error")
			}
			return
		}
	}
}

// writePump sends queued snapshots and periodic pings until send is closed.
func (s *stateStream) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("State stream close error")
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to write state snapshot")
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
