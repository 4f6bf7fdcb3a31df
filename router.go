package gigboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SenderResolver looks up a user's display name for notification copy.
type SenderResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// RouterOptions configures a Router.
type RouterOptions struct {
	// LocalUserID is the id of the signed-in user.
	LocalUserID   string
	Conversations *ConversationStore
	Disputes      *DisputeStore
	Toasts        *NotificationSurface
	// Resolver is optional; without it every message toast uses the default
	// title.
	Resolver SenderResolver
	// EnrichTimeout bounds one sender lookup. Defaults to 5s.
	EnrichTimeout time.Duration
	Logger        *zap.Logger
}

// Router applies realtime events to the stores and the toast surface.
type Router struct {
	self          string
	conversations *ConversationStore
	disputes      *DisputeStore
	toasts        *NotificationSurface
	resolver      SenderResolver
	timeout       time.Duration
	log           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewRouter creates a router. Nil stores are skipped when events arrive.
func NewRouter(opts RouterOptions) *Router {
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		self:          opts.LocalUserID,
		conversations: opts.Conversations,
		disputes:      opts.Disputes,
		toasts:        opts.Toasts,
		resolver:      opts.Resolver,
		timeout:       opts.EnrichTimeout,
		log:           opts.Logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Attach subscribes the router to m. The returned func unsubscribes it.
func (r *Router) Attach(m *ConnectionManager) (detach func()) {
	offs := []func(){
		m.OnNewMessage(func(ev NewMessageEvent) { r.HandleDirectMessage(ev.Message) }),
		m.OnDisputeMessage(r.HandleDisputeMessage),
		m.OnNotification(r.HandleNotification),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// CounterpartOf returns the conversation key of msg from self's point of
// view: the sender when self received it, the receiver when self sent it.
func CounterpartOf(self string, msg Message) string {
	if msg.SenderID == self {
		return msg.ReceiverID
	}
	return msg.SenderID
}

// HandleDirectMessage appends msg to its conversation and, unless self sent
// it, shows one toast.
func (r *Router) HandleDirectMessage(msg Message) {
	if !r.begin() {
		return
	}
	defer r.inflight.Done()

	key := CounterpartOf(r.self, msg)
	if key == "" {
		r.log.Warn("direct message without counterpart", zap.String("sender_id", msg.SenderID))
	} else if r.conversations != nil {
		r.conversations.AppendIncoming(key, msg)
	}

	if msg.SenderID == r.self || r.toasts == nil {
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.toasts.Push(r.messageToast(msg))
	}()
}

// HandleDisputeMessage forwards ev to the dispute store, which ignores it
// unless ev's dispute is the loaded one.
func (r *Router) HandleDisputeMessage(ev DisputeMessageEvent) {
	if r.disputes == nil || !r.begin() {
		return
	}
	defer r.inflight.Done()
	if r.disputes.AppendMessage(ev.DisputeID, ev.Message) {
		r.log.Debug("dispute message appended", zap.String("dispute_id", ev.DisputeID))
	}
}

// HandleNotification shows a toast for every notification.
func (r *Router) HandleNotification(ev NotificationEvent) {
	if r.toasts == nil || !r.begin() {
		return
	}
	defer r.inflight.Done()
	r.toasts.Push(Toast{Kind: ToastNotification, Title: ev.Title, Body: ev.Message})
}

// begin registers one unit of work unless the router is closed. The check and
// the Add share the lock Close takes, so no work starts once Close waits.
func (r *Router) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.inflight.Add(1)
	return true
}

// Wait blocks until pending message toasts are shown.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// Close stops routing, abandons pending sender lookups and waits for their
// toasts, which fall back to the default title. Events handled after Close are
// ignored.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.inflight.Wait()
}

// messageToast builds the toast for msg: first try to resolve the sender's
// name within the timeout, then fall back to the default title on any failure.
func (r *Router) messageToast(msg Message) Toast {
	t := Toast{Kind: ToastMessage, Title: DefaultMessageTitle, Body: msg.Message, From: msg.SenderID}
	name, err := r.resolveSender(msg.SenderID)
	if err != nil {
		r.log.Info("sender lookup failed, using default title", zap.String("sender_id", msg.SenderID), zap.Error(err))
		return t
	}
	t.Title = "New message from " + name
	return t
}

var errNoResolver = errors.New("no sender resolver")

func (r *Router) resolveSender(userID string) (string, error) {
	if r.resolver == nil {
		return "", errNoResolver
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		name, err := r.resolver.DisplayName(ctx, userID)
		ch <- result{name, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		if strings.TrimSpace(res.name) == "" {
			return "", errors.New("empty display name")
		}
		return res.name, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
