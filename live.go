package gigboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LiveOptions configures a Live. All fields are optional.
type LiveOptions struct {
	Logger        *zap.Logger
	ToastTTL      time.Duration
	EnrichTimeout time.Duration
	// Resolver overrides the client's user lookup for toast titles.
	Resolver SenderResolver
}

// Live wires one session's socket to presence, the conversation and dispute
// stores, and the toast surface.
type Live struct {
	client  *Client
	session Session
	log     *zap.Logger

	Manager       *ConnectionManager
	Presence      *PresenceTracker
	Conversations *ConversationStore
	Disputes      *DisputeStore
	Toasts        *NotificationSurface
	Router        *Router

	mu       sync.Mutex
	detaches []func()
}

// NewLive builds the realtime stack for session. client serves history,
// dispute detail, sender lookups and sends.
func NewLive(client *Client, transport Transport, session Session, opts *LiveOptions) *Live {
	var o LiveOptions
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Resolver == nil && client != nil {
		o.Resolver = client.Users
	}

	l := &Live{client: client, session: session, log: o.Logger}

	var history HistoryFetcher
	var disputes DisputeFetcher
	if client != nil {
		history = client.Messages
		disputes = client.Disputes
	}

	l.Manager = NewConnectionManager(transport, WithManagerLogger(o.Logger.Named("socket")))
	l.Presence = NewPresenceTracker()
	l.Conversations = NewConversationStore(history, o.Logger.Named("conversations"))
	l.Disputes = NewDisputeStore(disputes, o.Logger.Named("disputes"))
	l.Toasts = NewNotificationSurface(&SurfaceOptions{TTL: o.ToastTTL, Logger: o.Logger.Named("toasts")})
	l.Router = NewRouter(RouterOptions{
		LocalUserID:   session.UserID,
		Conversations: l.Conversations,
		Disputes:      l.Disputes,
		Toasts:        l.Toasts,
		Resolver:      o.Resolver,
		EnrichTimeout: o.EnrichTimeout,
		Logger:        o.Logger.Named("router"),
	})
	return l
}

// Start subscribes the stores and opens the socket.
func (l *Live) Start(ctx context.Context) error {
	if !l.session.Authenticated() {
		return ErrNoSession
	}

	l.mu.Lock()
	if len(l.detaches) == 0 {
		l.detaches = append(l.detaches,
			l.Presence.Attach(l.Manager),
			l.Router.Attach(l.Manager),
		)
	}
	l.mu.Unlock()

	return l.Manager.SetSession(ctx, l.session)
}

// Stop closes the socket, detaches the subscribers and waits for pending
// toasts. Once it returns no event reaches the stores or the toast surface.
// Safe to call repeatedly.
func (l *Live) Stop() error {
	err := l.Manager.Close()

	l.mu.Lock()
	detaches := l.detaches
	l.detaches = nil
	l.mu.Unlock()
	for _, off := range detaches {
		off()
	}

	l.Router.Close()
	l.Toasts.Close()
	return err
}

// Session returns the session this Live was built for.
func (l *Live) Session() Session {
	return l.session
}

// SendDirect posts a message to receiverID, appends the stored copy to that
// conversation and mirrors it to the room over the socket. The mirror is
// best effort; its failure is logged, not returned.
func (l *Live) SendDirect(ctx context.Context, receiverID, text string) (*Message, error) {
	if l.client == nil {
		return nil, fmt.Errorf("send message: no client configured")
	}
	msg, err := l.client.Messages.Send(ctx, receiverID, text)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if msg.SenderID == "" {
		msg.SenderID = l.session.UserID
	}
	if msg.ReceiverID == "" {
		msg.ReceiverID = receiverID
	}
	if msg.SentAt == "" {
		msg.SentAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	l.Conversations.AppendIncoming(receiverID, *msg)

	cmd := ChatMessageCommand{
		ID:        firstNonEmpty(msg.ID, uuid.NewString()),
		SenderID:  l.session.UserID,
		Text:      text,
		RoomID:    DirectRoomID(l.session.UserID, receiverID),
		Timestamp: msg.SentAt,
	}
	if err := l.Manager.Emit(ctx, cmd); err != nil {
		l.log.Debug("chat mirror not sent", zap.String("room_id", cmd.RoomID), zap.Error(err))
	}
	return msg, nil
}

// SendDisputeMessage posts text to the loaded dispute. It returns
// ErrComposeDisabled when no dispute is loaded or the loaded one is resolved
// or closed. When the server's reply carries no timestamp the thread is
// reloaded instead, so the realtime echo still deduplicates against it.
func (l *Live) SendDisputeMessage(ctx context.Context, text string) (*DisputeMessage, error) {
	d, ok := l.Disputes.Composable()
	if !ok {
		return nil, ErrComposeDisabled
	}
	if l.client == nil {
		return nil, fmt.Errorf("send dispute message: no client configured")
	}
	msg, err := l.client.Disputes.SendMessage(ctx, d.ID, text)
	if err != nil {
		return nil, fmt.Errorf("send dispute message: %w", err)
	}
	if msg.Sender == "" {
		msg.Sender = l.session.UserID
	}
	if msg.SentAt == "" {
		if err := l.Disputes.FetchDetail(ctx, d.ID); err != nil {
			l.log.Warn("dispute reload after send failed", zap.String("dispute_id", d.ID), zap.Error(err))
		}
		return msg, nil
	}
	l.Disputes.AppendMessage(d.ID, *msg)
	return msg, nil
}

// JoinRoom asks the server to add the socket to roomID.
func (l *Live) JoinRoom(ctx context.Context, roomID string) error {
	return l.Manager.Emit(ctx, JoinCommand{RoomID: roomID})
}

// FlagMessage reports messageID in roomID for moderation.
func (l *Live) FlagMessage(ctx context.Context, roomID, messageID, reason string) error {
	return l.Manager.Emit(ctx, FlagCommand{
		MessageID: messageID,
		RoomID:    roomID,
		FlaggedBy: l.session.UserID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// DirectRoomID is the room shared by two users, independent of order.
func DirectRoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
