package gigboard

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event names (server to client).
const (
	EventOnlineUsers     = "getOnlineUsers"
	EventNewMessage      = "newMessage"
	EventDisputeMessage  = "disputeMessage"
	EventNewNotification = "newNotification"
)

// Outbound command names (client to server). The socket is not the send path;
// these are best-effort hints to other tabs and users.
const (
	CommandJoin    = "chat:join"
	CommandMessage = "chat:message"
	CommandFlag    = "chat:flag"
)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PayloadError reports an inbound payload that is missing a required field or
// does not have the shape its event name promises.
type PayloadError struct {
	Event  string
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %s", e.Event, e.Reason)
}

// ============================================================================
// Event Payload Types
// ============================================================================

// OnlineUsersEvent is the full current presence set.
type OnlineUsersEvent struct {
	UserIDs []string
}

// NewMessageEvent is a direct message push.
type NewMessageEvent struct {
	Message Message
}

// DisputeMessageEvent is a message appended to a dispute thread.
type DisputeMessageEvent struct {
	DisputeID string         `json:"disputeId"`
	Message   DisputeMessage `json:"message"`
}

// NotificationEvent is a generic account notification.
type NotificationEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ============================================================================
// Decoding
// ============================================================================

func decodeOnlineUsers(data json.RawMessage) (OnlineUsersEvent, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return OnlineUsersEvent{}, &PayloadError{Event: EventOnlineUsers, Reason: "expected an array of user ids"}
	}
	return OnlineUsersEvent{UserIDs: ids}, nil
}

func decodeNewMessage(data json.RawMessage) (NewMessageEvent, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return NewMessageEvent{}, &PayloadError{Event: EventNewMessage, Reason: err.Error()}
	}
	if m.SenderID == "" {
		return NewMessageEvent{}, &PayloadError{Event: EventNewMessage, Reason: "missing senderId"}
	}
	if m.Message == "" {
		return NewMessageEvent{}, &PayloadError{Event: EventNewMessage, Reason: "missing message"}
	}
	return NewMessageEvent{Message: m}, nil
}

func decodeDisputeMessage(data json.RawMessage) (DisputeMessageEvent, error) {
	var ev DisputeMessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return DisputeMessageEvent{}, &PayloadError{Event: EventDisputeMessage, Reason: err.Error()}
	}
	if ev.DisputeID == "" {
		return DisputeMessageEvent{}, &PayloadError{Event: EventDisputeMessage, Reason: "missing disputeId"}
	}
	if ev.Message.Message == "" {
		return DisputeMessageEvent{}, &PayloadError{Event: EventDisputeMessage, Reason: "missing message.message"}
	}
	return ev, nil
}

func decodeNotification(data json.RawMessage) (NotificationEvent, error) {
	var n NotificationEvent
	if err := json.Unmarshal(data, &n); err != nil {
		return NotificationEvent{}, &PayloadError{Event: EventNewNotification, Reason: err.Error()}
	}
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Message) == "" {
		return NotificationEvent{}, &PayloadError{Event: EventNewNotification, Reason: "title and message both empty"}
	}
	return n, nil
}

// ============================================================================
// Commands
// ============================================================================

// Command is an outbound frame.
type Command interface {
	EventName() string
}

// JoinCommand subscribes the socket to a room.
type JoinCommand struct {
	RoomID string
}

func (JoinCommand) EventName() string { return CommandJoin }

func (c JoinCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.RoomID)
}

// ChatMessageCommand mirrors a sent message to a room.
type ChatMessageCommand struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	RoomID    string `json:"roomId"`
	Timestamp string `json:"timestamp"`
}

func (ChatMessageCommand) EventName() string { return CommandMessage }

// FlagCommand reports a message for moderation.
type FlagCommand struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	FlaggedBy string `json:"flaggedBy"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

func (FlagCommand) EventName() string { return CommandFlag }

func encodeCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.EventName(), err)
	}
	return json.Marshal(Envelope{Event: cmd.EventName(), Data: data})
}
