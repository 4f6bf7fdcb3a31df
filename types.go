package gigboard

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents a non-2xx response from the marketplace API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return "api " + strconv.Itoa(e.Status) + " " + e.Code + ": " + e.Message
	}
	return "api " + strconv.Itoa(e.Status) + ": " + e.Message
}

// ============================================================================
// Users
// ============================================================================

// User is the public profile of a marketplace account.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // "client", "freelancer" or "admin"
}

func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var raw struct {
		alias
		AltID    string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.alias)
	if u.ID == "" {
		u.ID = raw.AltID
	}
	if u.Name == "" {
		u.Name = raw.Username
	}
	return nil
}

// ============================================================================
// Direct messages
// ============================================================================

// Message is one direct message between two users. Messages carry no
// guaranteed server id, so (SenderID, SentAt, Message) identifies them.
type Message struct {
	ID         string `json:"_id,omitempty"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
	Message    string `json:"message"`
	SentAt     string `json:"createdAt"`
}

// UnmarshalJSON accepts the timestamp as createdAt, timestamp or sentAt and the
// id as _id or id. Numeric timestamps are kept in their literal form.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string          `json:"_id"`
		AltID      string          `json:"id"`
		SenderID   json.RawMessage `json:"senderId"`
		ReceiverID json.RawMessage `json:"receiverId"`
		Message    string          `json:"message"`
		CreatedAt  json.RawMessage `json:"createdAt"`
		Timestamp  json.RawMessage `json:"timestamp"`
		SentAt     json.RawMessage `json:"sentAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID = firstNonEmpty(raw.ID, raw.AltID)
	m.SenderID, _ = decodeRef(raw.SenderID)
	m.ReceiverID, _ = decodeRef(raw.ReceiverID)
	m.Message = raw.Message
	m.SentAt = firstNonEmpty(looseString(raw.CreatedAt), looseString(raw.Timestamp), looseString(raw.SentAt))
	return nil
}

// ConversationSummary is one row of the conversation list endpoint.
type ConversationSummary struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	LastMessage   string `json:"lastMessage,omitempty"`
	LastMessageAt string `json:"lastMessageAt,omitempty"`
	Unread        int    `json:"unread,omitempty"`
}

// ============================================================================
// Disputes
// ============================================================================

// DisputeStatus is the lifecycle state of a dispute.
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeClosed      DisputeStatus = "closed"
)

// IsTerminal reports whether the dispute no longer accepts outbound messages.
func (s DisputeStatus) IsTerminal() bool {
	return s == DisputeResolved || s == DisputeClosed
}

// Dispute is a dispute record with its message thread.
type Dispute struct {
	ID         string           `json:"_id"`
	Title      string           `json:"title,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	ContractID string           `json:"contractId,omitempty"`
	Status     DisputeStatus    `json:"status"`
	Messages   []DisputeMessage `json:"messages"`
	CreatedAt  string           `json:"createdAt,omitempty"`
}

func (d *Dispute) UnmarshalJSON(data []byte) error {
	type alias Dispute
	var raw struct {
		alias
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Dispute(raw.alias)
	if d.ID == "" {
		d.ID = raw.AltID
	}
	return nil
}

// DisputeMessage is one entry of a dispute thread. Sender arrives either as
// a bare id or as a populated user object.
type DisputeMessage struct {
	Sender     string `json:"sender"`
	SenderName string `json:"senderName,omitempty"`
	SenderRole string `json:"senderRole"`
	Message    string `json:"message"`
	SentAt     string `json:"sentAt"`
}

func (m *DisputeMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sender     json.RawMessage `json:"sender"`
		SenderName string          `json:"senderName"`
		SenderRole string          `json:"senderRole"`
		Message    string          `json:"message"`
		SentAt     json.RawMessage `json:"sentAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, name := decodeRef(raw.Sender)
	m.Sender = id
	m.SenderName = firstNonEmpty(raw.SenderName, name)
	m.SenderRole = raw.SenderRole
	m.Message = raw.Message
	m.SentAt = looseString(raw.SentAt)
	return nil
}

// sameEntry is the thread dedup rule: equal timestamp and equal text.
func (m DisputeMessage) sameEntry(other DisputeMessage) bool {
	return m.SentAt == other.SentAt && m.Message == other.Message
}

// ============================================================================
// Notifications
// ============================================================================

// Notification is a stored account notification.
type Notification struct {
	ID        string `json:"_id,omitempty"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ============================================================================
// Helpers
// ============================================================================

// looseString returns a JSON string's value or the literal text of any other
// scalar. null and absent fields yield "".
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	return string(raw)
}

// decodeRef reads a reference that is either an id string or an object with
// _id/id and name/username.
func decodeRef(raw json.RawMessage) (id, name string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var obj struct {
			ID       string `json:"_id"`
			AltID    string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			return firstNonEmpty(obj.ID, obj.AltID), firstNonEmpty(obj.Name, obj.Username)
		}
		return "", ""
	}
	return looseString(raw), ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
