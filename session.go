package gigboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by outbound operations without an open socket.
	ErrNotConnected = errors.New("gigboard: not connected")
	// ErrNoSession is returned when an operation needs an authenticated session.
	ErrNoSession = errors.New("gigboard: no authenticated session")
)

// Session identifies the authenticated user a socket belongs to. A zero
// UserID means there is no authenticated session.
type Session struct {
	UserID string
	Token  string
}

// Authenticated reports whether the session identifies a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// ============================================================================
// Event bus
// ============================================================================

type listener[T any] struct {
	id uint64
	fn func(T)
}

// eventBus decodes envelopes into typed events and calls listeners in
// registration order on the delivering goroutine.
type eventBus struct {
	mu           sync.RWMutex
	nextID       uint64
	onlineUsers  []listener[OnlineUsersEvent]
	newMessage   []listener[NewMessageEvent]
	dispute      []listener[DisputeMessageEvent]
	notification []listener[NotificationEvent]
	generic      map[string][]listener[json.RawMessage]
	log          *zap.Logger
}

func newEventBus(log *zap.Logger) *eventBus {
	return &eventBus{
		generic: make(map[string][]listener[json.RawMessage]),
		log:     log,
	}
}

func addListener[T any](b *eventBus, list *[]listener[T], fn func(T)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	*list = append(*list, listener[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			kept := (*list)[:0:0]
			for _, l := range *list {
				if l.id != id {
					kept = append(kept, l)
				}
			}
			*list = kept
		})
	}
}

func snapshot[T any](b *eventBus, list *[]listener[T]) []listener[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]listener[T](nil), *list...)
}

func emit[T any](b *eventBus, event string, ls []listener[T], v T) {
	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("listener panicked", zap.String("event", event), zap.Any("panic", r))
				}
			}()
			l.fn(v)
		}()
	}
}

func (b *eventBus) dispatch(env Envelope) {
	var err error
	switch env.Event {
	case EventOnlineUsers:
		var ev OnlineUsersEvent
		if ev, err = decodeOnlineUsers(env.Data); err == nil {
			emit(b, env.Event, snapshot(b, &b.onlineUsers), ev)
		}
	case EventNewMessage:
		var ev NewMessageEvent
		if ev, err = decodeNewMessage(env.Data); err == nil {
			emit(b, env.Event, snapshot(b, &b.newMessage), ev)
		}
	case EventDisputeMessage:
		var ev DisputeMessageEvent
		if ev, err = decodeDisputeMessage(env.Data); err == nil {
			emit(b, env.Event, snapshot(b, &b.dispute), ev)
		}
	case EventNewNotification:
		var ev NotificationEvent
		if ev, err = decodeNotification(env.Data); err == nil {
			emit(b, env.Event, snapshot(b, &b.notification), ev)
		}
	}
	if err != nil {
		b.log.Warn("dropping event", zap.String("event", env.Event), zap.Error(err))
		return
	}

	b.mu.RLock()
	generic := append([]listener[json.RawMessage](nil), b.generic[env.Event]...)
	b.mu.RUnlock()
	emit(b, env.Event, generic, env.Data)
}

// ============================================================================
// ConnectionManager
// ============================================================================

// ConnectionManager owns the realtime socket of one session. It opens at most
// one socket at a time and is the only component that opens or closes it.
// Listeners registered on the manager survive session changes.
//
// Closing a socket waits for the frame being dispatched, so listeners must not
// call SetSession or Close synchronously. Emit, State and Session are safe.
type ConnectionManager struct {
	transport Transport
	bus       *eventBus
	log       *zap.Logger

	// lifecycle serializes SetSession and Close.
	lifecycle sync.Mutex
	mu        sync.Mutex
	session   Session
	socket    Socket
	// current is the generation of the live socket; frames from older
	// generations are ignored.
	current atomic.Uint64
}

// ManagerOption configures a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(log *zap.Logger) ManagerOption {
	return func(m *ConnectionManager) { m.log = log }
}

// NewConnectionManager creates a manager that opens sockets through transport.
func NewConnectionManager(transport Transport, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		transport: transport,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bus = newEventBus(m.log)
	return m
}

// SetSession brings the socket in line with sess. An authenticated session
// opens a socket unless one is already open for the same identity. A change of
// identity closes the old socket before the new one is opened. An
// unauthenticated session closes the socket.
func (m *ConnectionManager) SetSession(ctx context.Context, sess Session) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	same := m.socket != nil && m.session == sess
	m.mu.Unlock()
	if same {
		return nil
	}

	closeErr := m.closeCurrent()
	if !sess.Authenticated() {
		return closeErr
	}

	gen := m.current.Add(1)
	socket, err := m.transport.Open(ctx, sess, func(env Envelope) {
		if m.current.Load() != gen {
			return
		}
		m.bus.dispatch(env)
	})
	if err != nil {
		m.log.Warn("socket open failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return fmt.Errorf("open socket: %w", err)
	}

	m.mu.Lock()
	m.socket = socket
	m.session = sess
	m.mu.Unlock()
	m.log.Info("socket opened", zap.String("user_id", sess.UserID))
	return closeErr
}

// Close tears the socket down and clears the session. It returns once no
// frame of the closed socket is being dispatched. Safe to call repeatedly.
func (m *ConnectionManager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.closeCurrent()
}

// closeCurrent detaches the open socket, if any, and closes it outside mu so
// in-flight listeners can still use Emit, State and Session.
func (m *ConnectionManager) closeCurrent() error {
	m.mu.Lock()
	socket := m.socket
	userID := m.session.UserID
	m.socket = nil
	m.session = Session{}
	m.mu.Unlock()
	if socket == nil {
		return nil
	}
	m.current.Add(1)

	err := socket.Close()
	if err != nil {
		m.log.Debug("socket close", zap.String("user_id", userID), zap.Error(err))
	} else {
		m.log.Info("socket closed", zap.String("user_id", userID))
	}
	return err
}

// Session returns the session of the open socket, or a zero Session.
func (m *ConnectionManager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// State returns the state of the open socket.
func (m *ConnectionManager) State() RealtimeState {
	m.mu.Lock()
	socket := m.socket
	m.mu.Unlock()
	if socket == nil {
		return StateDisconnected
	}
	return socket.State()
}

// Emit sends a best-effort command over the open socket.
func (m *ConnectionManager) Emit(ctx context.Context, cmd Command) error {
	m.mu.Lock()
	socket := m.socket
	m.mu.Unlock()
	if socket == nil {
		return ErrNotConnected
	}
	return socket.Emit(ctx, cmd)
}

// OnOnlineUsers registers a presence listener. The returned func removes it.
func (m *ConnectionManager) OnOnlineUsers(fn func(OnlineUsersEvent)) func() {
	return addListener(m.bus, &m.bus.onlineUsers, fn)
}

// OnNewMessage registers a direct message listener.
func (m *ConnectionManager) OnNewMessage(fn func(NewMessageEvent)) func() {
	return addListener(m.bus, &m.bus.newMessage, fn)
}

// OnDisputeMessage registers a dispute thread listener.
func (m *ConnectionManager) OnDisputeMessage(fn func(DisputeMessageEvent)) func() {
	return addListener(m.bus, &m.bus.dispute, fn)
}

// OnNotification registers a notification listener.
func (m *ConnectionManager) OnNotification(fn func(NotificationEvent)) func() {
	return addListener(m.bus, &m.bus.notification, fn)
}

// On registers a raw listener for any event name, including ones this package
// has no type for. Raw listeners of known events only run for valid payloads.
func (m *ConnectionManager) On(event string, fn func(json.RawMessage)) func() {
	return m.addGeneric(event, fn)
}

func (m *ConnectionManager) addGeneric(event string, fn func(json.RawMessage)) func() {
	b := m.bus
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.generic[event] = append(b.generic[event], listener[json.RawMessage]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			var kept []listener[json.RawMessage]
			for _, l := range b.generic[event] {
				if l.id != id {
					kept = append(kept, l)
				}
			}
			if len(kept) == 0 {
				delete(b.generic, event)
				return
			}
			b.generic[event] = kept
		})
	}
}
