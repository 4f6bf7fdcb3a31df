package gigboard

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ToastKind tells what produced a toast.
type ToastKind string

const (
	ToastMessage      ToastKind = "message"
	ToastNotification ToastKind = "notification"
)

// DefaultMessageTitle is the toast title used when the sender of a direct
// message cannot be resolved.
const DefaultMessageTitle = "New Message"

// Toast is one transient notification.
type Toast struct {
	ID      string
	Kind    ToastKind
	Title   string
	Body    string
	From    string
	ShownAt time.Time
}

// SurfaceOptions configures a NotificationSurface.
type SurfaceOptions struct {
	// TTL is how long a toast stays active before it dismisses itself.
	TTL    time.Duration
	Logger *zap.Logger
}

// NotificationSurface shows one auto-dismissing toast per Push. Bursts are
// not coalesced and the number of active toasts is not capped.
type NotificationSurface struct {
	ttl time.Duration
	log *zap.Logger

	mu        sync.Mutex
	order     []string
	active    map[string]Toast
	timers    map[string]*time.Timer
	seq       map[string]int
	shown     int
	closed    bool
	onShow    []func(Toast)
	onDismiss []func(Toast)
}

// NewNotificationSurface creates a surface. opts may be nil.
func NewNotificationSurface(opts *SurfaceOptions) *NotificationSurface {
	s := &NotificationSurface{
		ttl:    5 * time.Second,
		log:    zap.NewNop(),
		active: make(map[string]Toast),
		timers: make(map[string]*time.Timer),
		seq:    make(map[string]int),
	}
	if opts != nil {
		if opts.TTL > 0 {
			s.ttl = opts.TTL
		}
		if opts.Logger != nil {
			s.log = opts.Logger
		}
	}
	return s
}

// Push shows t and schedules its dismissal. It returns the toast as shown,
// with ID and ShownAt filled in. Pushing an ID that is still active replaces
// that toast and restarts its timer. After Close, Push shows nothing.
func (s *NotificationSurface) Push(t Toast) Toast {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.ShownAt = time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("toast dropped after close", zap.String("kind", string(t.Kind)), zap.String("title", t.Title))
		return t
	}
	id := t.ID
	if _, ok := s.active[id]; ok {
		s.timers[id].Stop()
	} else {
		s.order = append(s.order, id)
	}
	s.active[id] = t
	s.shown++
	seq := s.shown
	s.seq[id] = seq
	s.timers[id] = time.AfterFunc(s.ttl, func() { s.dismiss(id, seq) })
	hooks := append([]func(Toast){}, s.onShow...)
	s.mu.Unlock()

	s.log.Debug("toast shown", zap.String("kind", string(t.Kind)), zap.String("title", t.Title))
	for _, h := range hooks {
		h(t)
	}
	return t
}

// Dismiss removes an active toast. It reports whether the toast was active.
func (s *NotificationSurface) Dismiss(id string) bool {
	return s.dismiss(id, 0)
}

// dismiss removes id; a non-zero seq must match the toast's latest push.
func (s *NotificationSurface) dismiss(id string, seq int) bool {
	s.mu.Lock()
	t, ok := s.active[id]
	if !ok || (seq != 0 && s.seq[id] != seq) {
		s.mu.Unlock()
		return false
	}
	delete(s.active, id)
	if timer := s.timers[id]; timer != nil {
		timer.Stop()
	}
	delete(s.timers, id)
	delete(s.seq, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	hooks := append([]func(Toast){}, s.onDismiss...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(t)
	}
	return true
}

// Active returns the toasts currently shown, oldest first.
func (s *NotificationSurface) Active() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.active[id])
	}
	return out
}

// Shown returns how many toasts have been pushed.
func (s *NotificationSurface) Shown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown
}

// OnShow registers a renderer called for every pushed toast.
func (s *NotificationSurface) OnShow(fn func(Toast)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShow = append(s.onShow, fn)
}

// OnDismiss registers a hook called when a toast goes away.
func (s *NotificationSurface) OnDismiss(fn func(Toast)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDismiss = append(s.onDismiss, fn)
}

// Close stops pending dismiss timers and clears the active toasts without
// running dismiss hooks. Later pushes are dropped.
func (s *NotificationSurface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.seq = make(map[string]int)
	s.active = make(map[string]Toast)
	s.order = nil
}
