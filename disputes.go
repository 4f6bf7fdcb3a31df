package gigboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrComposeDisabled is returned when sending to a dispute that is not loaded
// or has reached a terminal status.
var ErrComposeDisabled = errors.New("gigboard: dispute does not accept new messages")

// DisputeFetcher loads one dispute with its thread.
type DisputeFetcher interface {
	Get(ctx context.Context, disputeID string) (*Dispute, error)
}

// DisputeStore holds the thread of the one dispute currently open.
type DisputeStore struct {
	fetcher DisputeFetcher
	log     *zap.Logger

	mu       sync.RWMutex
	dispute  *Dispute
	onChange []func(Dispute)
}

// NewDisputeStore creates an empty store.
func NewDisputeStore(fetcher DisputeFetcher, log *zap.Logger) *DisputeStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DisputeStore{fetcher: fetcher, log: log}
}

// FetchDetail loads disputeID and replaces the held dispute with it. On
// failure the held dispute is left as is.
func (s *DisputeStore) FetchDetail(ctx context.Context, disputeID string) error {
	if s.fetcher == nil {
		return fmt.Errorf("fetch dispute %s: no fetcher configured", disputeID)
	}
	d, err := s.fetcher.Get(ctx, disputeID)
	if err != nil {
		s.log.Warn("fetch dispute failed", zap.String("dispute_id", disputeID), zap.Error(err))
		return fmt.Errorf("fetch dispute %s: %w", disputeID, err)
	}
	if d.ID == "" {
		d.ID = disputeID
	}
	s.Replace(*d)
	return nil
}

// Replace swaps in d as the held dispute.
func (s *DisputeStore) Replace(d Dispute) {
	d.Messages = append([]DisputeMessage(nil), d.Messages...)

	s.mu.Lock()
	s.dispute = &d
	hooks := append([]func(Dispute){}, s.onChange...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(cloneDispute(d))
	}
}

// AppendMessage adds msg to the held dispute when its id is disputeID and no
// entry with the same timestamp and text is already in the thread. Terminal
// disputes still take appends. It reports whether msg was appended.
func (s *DisputeStore) AppendMessage(disputeID string, msg DisputeMessage) bool {
	s.mu.Lock()
	if s.dispute == nil || s.dispute.ID != disputeID {
		s.mu.Unlock()
		return false
	}
	for _, existing := range s.dispute.Messages {
		if existing.sameEntry(msg) {
			s.mu.Unlock()
			s.log.Debug("duplicate dispute message", zap.String("dispute_id", disputeID), zap.String("sent_at", msg.SentAt))
			return false
		}
	}
	s.dispute.Messages = append(s.dispute.Messages, msg)
	snap := cloneDispute(*s.dispute)
	hooks := append([]func(Dispute){}, s.onChange...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(snap)
	}
	return true
}

// Current returns a copy of the held dispute.
func (s *DisputeStore) Current() (Dispute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dispute == nil {
		return Dispute{}, false
	}
	return cloneDispute(*s.dispute), true
}

// Composable returns the held dispute when it accepts outbound messages, read
// under one lock.
func (s *DisputeStore) Composable() (Dispute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dispute == nil || s.dispute.Status.IsTerminal() {
		return Dispute{}, false
	}
	return cloneDispute(*s.dispute), true
}

// CanCompose reports whether the outbound compose control is enabled.
func (s *DisputeStore) CanCompose() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispute != nil && !s.dispute.Status.IsTerminal()
}

// Clear drops the held dispute.
func (s *DisputeStore) Clear() {
	s.mu.Lock()
	s.dispute = nil
	s.mu.Unlock()
}

// OnChange registers a hook called with a snapshot after every change.
func (s *DisputeStore) OnChange(fn func(Dispute)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func cloneDispute(d Dispute) Dispute {
	d.Messages = append([]DisputeMessage(nil), d.Messages...)
	return d
}
