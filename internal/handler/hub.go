/*
Package handler provides the HTTP handlers and routing setup for the presentation bridge.

This file defines the StateHub, which watches the session for changes and pushes a fresh
JSON snapshot to every connected state stream.
*/
package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"chatclient/internal/pkg/logx"
)

// streamBuffer is the number of pending snapshots a slow stream may hold before frames are skipped.
const streamBuffer = 16

// StateHub fans session snapshots out to stream subscribers.
type StateHub struct {
	session Session

	// subscribers maps each registered stream to its outbound queue.
	subscribers map[*stateStream]struct{}

	register   chan *stateStream
	unregister chan *stateStream

	// done is closed when Run returns.
	done chan struct{}

	logger zerolog.Logger
}

// NewStateHub creates a hub for s. Call Run to start it.
func NewStateHub(s Session) *StateHub {
	return &StateHub{
		session:     s,
		subscribers: make(map[*stateStream]struct{}),
		register:    make(chan *stateStream),
		unregister:  make(chan *stateStream),
		done:        make(chan struct{}),
		logger:      logx.Component("state_hub"),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled or the session stops.
func (h *StateHub) Run(ctx context.Context) {
	defer func() {
		for s := range h.subscribers {
			close(s.send)
		}
		h.subscribers = nil
		close(h.done)
		h.logger.Info().Msg("State hub stopped")
	}()

	for {
		select {
		case s := <-h.register:
			h.subscribers[s] = struct{}{}
			h.logger.Debug().Int("subscribers", len(h.subscribers)).Msg("State stream registered")

			// a new subscriber always starts from the current state
			if frame, ok := h.encodeSnapshot(); ok {
				h.deliver(s, frame)
			}

		case s := <-h.unregister:
			if _, ok := h.subscribers[s]; ok {
				delete(h.subscribers, s)
				close(s.send)
				h.logger.Debug().Int("subscribers", len(h.subscribers)).Msg("State stream unregistered")
			}

		case <-h.session.Changes():
			if len(h.subscribers) == 0 {
				continue
			}
			frame, ok := h.encodeSnapshot()
			if !ok {
				continue
			}
			for s := range h.subscribers {
				h.deliver(s, frame)
			}

		case <-h.session.Done():
			return

		case <-ctx.Done():
			return
		}
	}
}

// Subscribe registers s. It reports false when the hub has stopped.
func (h *StateHub) Subscribe(s *stateStream) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

// Unsubscribe removes s. It is safe to call after the hub has stopped.
func (h *StateHub) Unsubscribe(s *stateStream) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *StateHub) encodeSnapshot() ([]byte, bool) {
	frame, err := json.Marshal(h.session.Snapshot())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode state snapshot")
		return nil, false
	}
	return frame, true
}

// deliver queues frame for s. A full queue drops the oldest pending frame, since
// every frame is a complete snapshot and only the newest one matters.
func (h *StateHub) deliver(s *stateStream, frame []byte) {
	for {
		select {
		case s.send <- frame:
			return
		default:
		}

		select {
		case <-s.send:
			h.logger.Debug().Msg("State stream lagging, dropped stale snapshot")
		default:
		}
	}
}
