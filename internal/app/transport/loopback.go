package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chatclient/internal/app/chat"
	"chatclient/internal/app/user"
	"chatclient/internal/pkg/logx"
)

// Loopback is an in-process transport that behaves like a minimal single-room server:
// it keeps a roster of dialed users, fans messages out to every connection (including
// the sender, so echoes happen) and relays typing changes to the other connections.
// It backs the offline CLI mode and the session tests.
type Loopback struct {
	mu sync.Mutex

	// failDials is the number of upcoming Dial calls that fail.
	failDials int

	// dials counts every Dial call, failed ones included.
	dials int

	conns  []*loopbackConn
	roster []user.User

	// sent records every event emitted by clients, in order.
	sent []chat.Event

	logger zerolog.Logger
}

// NewLoopback returns an empty loopback server.
func NewLoopback() *Loopback {
	return &Loopback{logger: logx.Component("loopback")}
}

// FailNextDials makes the next n Dial calls return an error.
func (l *Loopback) FailNextDials(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failDials = n
}

// Dials reports how many times Dial was called.
func (l *Loopback) Dials() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dials
}

// Sent returns a copy of all events emitted by clients.
func (l *Loopback) Sent() []chat.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chat.Event(nil), l.sent...)
}

// Live reports the number of open connections.
func (l *Loopback) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

func (l *Loopback) Dial(ctx context.Context, userID, userName string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.dials++
	if l.failDials > 0 {
		l.failDials--
		return nil, fmt.Errorf("loopback: dial refused for %s", userID)
	}

	c := &loopbackConn{
		server: l,
		userID: userID,
		events: make(chan chat.Event, queueSize),
		done:   make(chan struct{}),
	}
	c.events <- chat.ConnectEvent()

	l.conns = append(l.conns, c)
	l.upsertLocked(user.User{ID: userID, Name: userName, Online: true})
	l.broadcastLocked(chat.UsersEvent(l.rosterLocked()), nil)

	l.logger.Debug().Str("user_id", userID).Int("live", len(l.conns)).Msg("Client dialed")
	return c, nil
}

// Push delivers ev to every open connection, as if the server had sent it.
func (l *Loopback) Push(ev chat.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcastLocked(ev, nil)
}

// Drop closes every connection from the server side; clients observe a disconnect.
func (l *Loopback) Drop() {
	l.mu.Lock()
	conns := l.conns
	l.conns = nil
	l.mu.Unlock()

	for _, c := range conns {
		c.end(chat.DisconnectEvent(fmt.Errorf("loopback: dropped by server")))
	}
}

func (l *Loopback) emit(from *loopbackConn, ev chat.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sent = append(l.sent, ev)

	switch ev.Type {
	case chat.EventMessage:
		l.broadcastLocked(ev, nil)
	case chat.EventTyping:
		l.broadcastLocked(ev, from)
	}
}

func (l *Loopback) remove(c *loopbackConn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.conns {
		if existing == c {
			l.conns = append(l.conns[:i], l.conns[i+1:]...)
			break
		}
	}

	for i := range l.roster {
		if l.roster[i].ID == c.userID {
			l.roster[i].Online = false
		}
	}
	l.broadcastLocked(chat.UsersEvent(l.rosterLocked()), nil)
}

func (l *Loopback) upsertLocked(u user.User) {
	for i := range l.roster {
		if l.roster[i].ID == u.ID {
			l.roster[i] = u
			return
		}
	}
	l.roster = append(l.roster, u)
}

func (l *Loopback) rosterLocked() []user.User {
	return append([]user.User(nil), l.roster...)
}

// broadcastLocked fans ev out to every connection except skip. Full queues drop the event.
func (l *Loopback) broadcastLocked(ev chat.Event, skip *loopbackConn) {
	for _, c := range l.conns {
		if c == skip {
			continue
		}
		if !c.push(ev) {
			l.logger.Warn().Str("user_id", c.userID).Str("event", string(ev.Type)).Msg("Client queue full, dropping event")
		}
	}
}

type loopbackConn struct {
	server *Loopback
	userID string

	mu     sync.Mutex
	ended  bool
	events chan chat.Event

	done      chan struct{}
	closeOnce sync.Once
}

func (c *loopbackConn) Events() <-chan chat.Event {
	return c.events
}

func (c *loopbackConn) Emit(ev chat.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if _, err := chat.Encode(ev); err != nil {
		return err
	}

	c.server.emit(c, ev)
	return nil
}

func (c *loopbackConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.end(chat.Event{})
		c.server.remove(c)
	})
	return nil
}

// push queues ev without blocking. It reports false when the queue is full.
func (c *loopbackConn) push(ev chat.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return true
	}

	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// end delivers a final event (unless zero) and closes the event stream.
func (c *loopbackConn) end(last chat.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return
	}
	c.ended = true

	if last.Type != "" {
		select {
		case c.events <- last:
		default:
		}
	}
	close(c.events)
}
