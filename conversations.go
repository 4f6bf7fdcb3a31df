package gigboard

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// HistoryFetcher loads the direct message history with one counterpart.
type HistoryFetcher interface {
	History(ctx context.Context, counterpartID string) ([]Message, error)
}

// ConversationStore holds message lists keyed by counterpart user id.
//
// Lists are plain accumulators: FetchHistory replaces a list, AppendIncoming
// appends to it in arrival order. There is no sorting and no dedup, so a
// message that arrives both in a fetch and as a push is shown twice.
type ConversationStore struct {
	fetcher HistoryFetcher
	log     *zap.Logger

	mu            sync.RWMutex
	conversations map[string][]Message
	onChange      []func(counterpartID string)
}

// NewConversationStore creates an empty store. fetcher may be nil when only
// pushes are used.
func NewConversationStore(fetcher HistoryFetcher, log *zap.Logger) *ConversationStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationStore{
		fetcher:       fetcher,
		log:           log,
		conversations: make(map[string][]Message),
	}
}

// FetchHistory replaces the list for counterpartID with the REST result. The
// last completed fetch wins. On failure the existing list is left as is.
func (s *ConversationStore) FetchHistory(ctx context.Context, counterpartID string) error {
	if s.fetcher == nil {
		return fmt.Errorf("fetch history %s: no fetcher configured", counterpartID)
	}
	msgs, err := s.fetcher.History(ctx, counterpartID)
	if err != nil {
		s.log.Warn("fetch history failed", zap.String("counterpart_id", counterpartID), zap.Error(err))
		return fmt.Errorf("fetch history %s: %w", counterpartID, err)
	}
	s.Replace(counterpartID, msgs)
	return nil
}

// Replace sets the list for counterpartID to exactly msgs.
func (s *ConversationStore) Replace(counterpartID string, msgs []Message) {
	list := make([]Message, len(msgs))
	copy(list, msgs)

	s.mu.Lock()
	s.conversations[counterpartID] = list
	hooks := append([]func(string){}, s.onChange...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(counterpartID)
	}
}

// AppendIncoming adds msg to the end of the list for counterpartID, creating
// the conversation if it does not exist yet.
func (s *ConversationStore) AppendIncoming(counterpartID string, msg Message) {
	s.mu.Lock()
	s.conversations[counterpartID] = append(s.conversations[counterpartID], msg)
	hooks := append([]func(string){}, s.onChange...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(counterpartID)
	}
}

// Messages returns a copy of the list for counterpartID.
func (s *ConversationStore) Messages(counterpartID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.conversations[counterpartID]...)
}

// Has reports whether a conversation exists for counterpartID.
func (s *ConversationStore) Has(counterpartID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[counterpartID]
	return ok
}

// Counterparts returns the known counterpart ids, sorted.
func (s *ConversationStore) Counterparts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnChange registers a hook called after any list changes.
func (s *ConversationStore) OnChange(fn func(counterpartID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}
