/*
Package session implements the chat session manager.

A Manager owns the client-side session state: identity, roster, message log,
connection status and the set of users currently typing. All state lives in a
single goroutine (the loop); the public methods post commands to it and wait for
them to finish, transport events arrive on a channel, and the presentation layer
reads copies through Snapshot after being woken by Changes.
*/
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"chatclient/internal/app/chat"
	"chatclient/internal/app/store"
	"chatclient/internal/app/transport"
	"chatclient/internal/app/user"
	"chatclient/internal/pkg/logx"
)

const (
	// DefaultTypingTimeout is how long the typing indicator stays on after the last keystroke.
	DefaultTypingTimeout = 2000 * time.Millisecond

	defaultReconnectBaseDelay = 500 * time.Millisecond
	defaultReconnectMaxDelay  = 10 * time.Second
	defaultStoreTimeout       = 5 * time.Second
)

// Config tunes a Manager. The zero value is usable.
type Config struct {
	// TypingTimeout is the inactivity delay after which a typing stop is sent.
	TypingTimeout time.Duration

	// ReconnectAttempts is the number of extra dial attempts after a failure or a
	// lost connection. Zero disables reconnection.
	ReconnectAttempts  uint64
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// StoreTimeout bounds each persistence call.
	StoreTimeout time.Duration

	// Now stamps outgoing messages. Defaults to time.Now.
	Now func() time.Time

	// Registerer receives the session metrics. Nil skips registration.
	Registerer prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = DefaultTypingTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = max(defaultReconnectMaxDelay, c.ReconnectBaseDelay)
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// inbound is a transport event tagged with the connection generation it came from.
type inbound struct {
	gen uint64
	ev  chat.Event
}

// dialResult is the outcome of one connect cycle.
type dialResult struct {
	gen  uint64
	conn transport.Conn
	err  error
}

// Manager is the chat session manager.
type Manager struct {
	transport transport.Transport
	kv        store.KV
	cfg       Config
	metrics   *metrics
	logger    zerolog.Logger

	cmds    chan func()
	inbound chan inbound
	dialed  chan dialResult
	changes chan struct{}
	stop    chan struct{}
	done    chan struct{}

	// lifecycle serializes the start and close decisions.
	lifecycle sync.Mutex
	started   atomic.Bool
	closed    bool
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// Fields below are owned by the loop goroutine.
	state sessionState

	conn       transport.Conn
	gen        uint64
	cancelDial context.CancelFunc

	// typing reports whether a typing start has been sent without its stop.
	typing      bool
	typingTimer *time.Timer
	typingC     <-chan time.Time

	// final is the state captured when the loop exits.
	final State
}

// NewManager creates a manager that connects through tr and persists the identity in kv.
// Call Start before using it.
func NewManager(tr transport.Transport, kv store.KV, cfg Config) *Manager {
	cfg = cfg.withDefaults()

	return &Manager{
		transport: tr,
		kv:        kv,
		cfg:       cfg,
		metrics:   newMetrics(cfg.Registerer),
		logger:    logx.Component("session"),

		cmds:    make(chan func()),
		inbound: make(chan inbound, 64),
		dialed:  make(chan dialResult),
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),

		state: newSessionState(),
	}
}

// Start runs the manager loop and restores a persisted identity, connecting
// immediately when one is found. ctx bounds the lifetime of every connection.
func (m *Manager) Start(ctx context.Context) {
	m.lifecycle.Lock()
	if m.closed || m.started.Load() {
		m.lifecycle.Unlock()
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started.Store(true)
	go m.run()
	m.lifecycle.Unlock()

	m.do(m.restore)
}

// Close disconnects and stops the loop. Snapshot keeps returning the final state.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.lifecycle.Lock()
		m.closed = true
		started := m.started.Load()
		m.lifecycle.Unlock()

		if !started {
			close(m.done)
			return
		}
		close(m.stop)
		<-m.done
	})
}

// Done is closed once the manager has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Changes signals that the state may have changed. Signals coalesce: one pending
// notification covers any number of updates, so readers should take a fresh Snapshot.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	var st State
	if m.do(func() { st = m.state.snapshot() }) {
		return st
	}

	select {
	case <-m.done:
		if m.started.Load() {
			return m.final
		}
	default:
	}

	empty := newSessionState()
	return empty.snapshot()
}

// Login creates a fresh identity from name, persists it and connects. It fails
// when name is empty after normalization.
func (m *Manager) Login(name string) (user.User, bool) {
	clean := user.NormalizeName(name)
	if clean == "" {
		return user.User{}, false
	}

	u := user.New(clean)
	if !m.do(func() { m.login(u) }) {
		return user.User{}, false
	}
	return u, true
}

// SendMessage appends a message authored by the current user and emits it. It is
// a no-op returning false when text is blank, nobody is logged in or the session
// is not connected.
func (m *Manager) SendMessage(text string) (chat.Message, bool) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, false
	}

	var (
		msg chat.Message
		ok  bool
	)
	m.do(func() { msg, ok = m.sendMessage(text) })
	return msg, ok
}

// SetTyping reports local typing activity. true (re)arms the inactivity timer,
// false sends a stop at once.
func (m *Manager) SetTyping(isTyping bool) {
	m.do(func() { m.setTyping(isTyping) })
}

// Logout disconnects and forgets the persisted identity. It reports false when
// nobody was logged in.
func (m *Manager) Logout() bool {
	var ok bool
	m.do(func() { ok = m.logout() })
	return ok
}

// do runs fn on the loop goroutine and waits for it. It reports false when the
// manager is not running.
func (m *Manager) do(fn func()) bool {
	if !m.started.Load() {
		return false
	}

	ran := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(ran) }:
	case <-m.done:
		return false
	}

	<-ran
	return true
}

// run is the loop. It exits when Close is called.
func (m *Manager) run() {
	defer close(m.done)

	for {
		select {
		case fn := <-m.cmds:
			fn()

		case in := <-m.inbound:
			m.handleEvent(in)

		case res := <-m.dialed:
			m.handleDialed(res)

		case <-m.typingC:
			m.typingExpired()

		case <-m.stop:
			m.teardown()
			return
		}
	}
}

func (m *Manager) teardown() {
	m.disarmTyping()
	if m.typing {
		m.emitTyping(false)
		m.typing = false
	}
	m.dropConn()
	m.cancel()

	m.setStatus(Disconnected)
	m.final = m.state.snapshot()

	m.logger.Info().Msg("Session manager stopped")
}

func (m *Manager) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func (m *Manager) setStatus(s Status) {
	m.state.status = s
	m.metrics.status.Set(float64(s))
}

func (m *Manager) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
}

func (m *Manager) restore() {
	ctx, cancel := m.storeCtx()
	defer cancel()

	u, ok, err := store.LoadUser(ctx, m.kv)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Persisted identity unreadable, starting logged out")
		return
	}
	if !ok {
		return
	}

	m.logger.Info().Str("user_id", u.ID).Str("user_name", u.Name).Msg("Restored persisted identity")

	m.state.currentUser = &u
	m.state.upsertUser(u)
	m.connect(u)
	m.notify()
}

func (m *Manager) login(u user.User) {
	if m.state.currentUser != nil {
		m.stopTyping()
		m.dropConn()
		m.state.removeUser(m.state.currentUser.ID)
	}

	ctx, cancel := m.storeCtx()
	if err := store.SaveUser(ctx, m.kv, u); err != nil {
		m.logger.Error().Err(err).Str("user_id", u.ID).Msg("Failed to persist identity")
	}
	cancel()

	m.state.currentUser = &u
	m.state.upsertUser(u)

	m.logger.Info().Str("user_id", u.ID).Str("user_name", u.Name).Msg("User logged in")

	m.connect(u)
	m.notify()
}

func (m *Manager) logout() bool {
	cu := m.state.currentUser
	if cu == nil {
		return false
	}

	m.stopTyping()
	m.dropConn()

	ctx, cancel := m.storeCtx()
	if err := store.ForgetUser(ctx, m.kv); err != nil {
		m.logger.Error().Err(err).Str("user_id", cu.ID).Msg("Failed to forget identity")
	}
	cancel()

	m.state.removeUser(cu.ID)
	m.state.currentUser = nil
	clear(m.state.typingIDs)
	m.state.lastError = ""
	m.setStatus(Disconnected)

	m.logger.Info().Str("user_id", cu.ID).Msg("User logged out")

	m.notify()
	return true
}

func (m *Manager) sendMessage(text string) (chat.Message, bool) {
	cu := m.state.currentUser
	if cu == nil || m.state.status != Connected || m.conn == nil {
		m.logger.Debug().Str("status", m.state.status.String()).Msg("Message dropped, session not connected")
		return chat.Message{}, false
	}

	msg := chat.NewMessage(cu.ID, text, m.cfg.Now())
	if last := m.state.lastTimestamp(); msg.Timestamp < last {
		msg.Timestamp = last
	}

	m.state.appendMessage(msg)
	m.metrics.sent.Inc()

	if err := m.conn.Emit(chat.MessageEvent(msg)); err != nil {
		m.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to emit message")
	}

	m.notify()
	return msg, true
}

func (m *Manager) setTyping(isTyping bool) {
	if m.state.currentUser == nil {
		return
	}

	if !isTyping {
		m.disarmTyping()
		m.typing = false
		m.emitTyping(false)
		return
	}

	if !m.typing {
		m.typing = true
		m.emitTyping(true)
	}
	m.armTyping()
}

// stopTyping sends a pending stop, if any, and disarms the timer.
func (m *Manager) stopTyping() {
	m.disarmTyping()
	if m.typing {
		m.typing = false
		m.emitTyping(false)
	}
}

func (m *Manager) typingExpired() {
	m.typingC = nil
	m.typing = false
	m.emitTyping(false)
}

func (m *Manager) armTyping() {
	if m.typingTimer == nil {
		m.typingTimer = time.NewTimer(m.cfg.TypingTimeout)
	} else {
		if !m.typingTimer.Stop() {
			select {
			case <-m.typingTimer.C:
			default:
			}
		}
		m.typingTimer.Reset(m.cfg.TypingTimeout)
	}
	m.typingC = m.typingTimer.C
}

func (m *Manager) disarmTyping() {
	if m.typingTimer != nil && !m.typingTimer.Stop() {
		select {
		case <-m.typingTimer.C:
		default:
		}
	}
	m.typingC = nil
}

func (m *Manager) emitTyping(on bool) {
	cu := m.state.currentUser
	if cu == nil || m.conn == nil {
		return
	}

	label := "stop"
	if on {
		label = "start"
	}
	m.metrics.typing.WithLabelValues(label).Inc()

	if err := m.conn.Emit(chat.TypingEvent(cu.ID, on)); err != nil {
		m.logger.Warn().Err(err).Bool("is_typing", on).Msg("Failed to emit typing")
	}
}

// connect starts a new connection generation for u. Results of older generations are discarded.
func (m *Manager) connect(u user.User) {
	m.dropConn()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelDial = cancel
	gen := m.gen

	m.setStatus(Connecting)
	go m.dial(ctx, gen, u)
}

// dropConn closes the active connection and cancels any dial in flight.
func (m *Manager) dropConn() {
	m.gen++

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("Error closing connection")
		}
		m.conn = nil
	}
}

func (m *Manager) handleDialed(res dialResult) {
	if res.gen != m.gen {
		if res.conn != nil {
			_ = res.conn.Close()
		}
		return
	}

	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			// the session context ended, not a newer connect
			m.setStatus(Disconnected)
			m.notify()
			return
		}
		m.logger.Error().Err(res.err).Msg("Transport connection failed")
		m.state.lastError = res.err.Error()
		m.setStatus(Disconnected)
		m.notify()
		return
	}

	m.conn = res.conn
	go m.pump(res.gen, res.conn)
}

// pump forwards the event stream of conn into the loop until it ends.
func (m *Manager) pump(gen uint64, conn transport.Conn) {
	for ev := range conn.Events() {
		select {
		case m.inbound <- inbound{gen: gen, ev: ev}:
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleEvent(in inbound) {
	if in.gen != m.gen {
		return
	}

	ev := in.ev
	switch ev.Type {
	case chat.EventConnect:
		m.state.lastError = ""
		m.setStatus(Connected)
		m.logger.Info().Msg("Connected to chat server")

	case chat.EventDisconnect:
		m.onDisconnect(ev.Err)

	case chat.EventMessage:
		if !m.state.appendMessage(ev.Message) {
			m.metrics.deduplicated.Inc()
			m.logger.Debug().Str("message_id", ev.Message.ID).Msg("Duplicate message ignored")
			return
		}
		m.metrics.received.Inc()

	case chat.EventUsers:
		m.state.replaceRoster(ev.Users)

	case chat.EventTyping:
		m.state.setTyping(ev.Typing.UserID, ev.Typing.IsTyping)

	default:
		m.logger.Debug().Str("event", string(ev.Type)).Msg("Ignoring unknown event")
		return
	}

	m.notify()
}

func (m *Manager) onDisconnect(cause error) {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	// the next connection has never seen our typing start
	m.disarmTyping()
	m.typing = false

	if cause != nil {
		m.state.lastError = cause.Error()
	}
	m.setStatus(Disconnected)

	ev := m.logger.Warn()
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Disconnected from chat server")

	if m.cfg.ReconnectAttempts > 0 && m.state.currentUser != nil {
		m.connect(*m.state.currentUser)
	}
}
