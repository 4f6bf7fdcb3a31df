package gigboard

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

// fakeTransport records every Open and hands the test a way to push frames
// into the socket it returned.
type fakeTransport struct {
	mu      sync.Mutex
	opened  []*fakeSocket
	openErr error
}

func (f *fakeTransport) Open(_ context.Context, sess Session, deliver func(Envelope)) (Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeSocket{session: sess, deliver: deliver}
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeTransport) sockets() []*fakeSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSocket(nil), f.opened...)
}

func (f *fakeTransport) last(t *testing.T) *fakeSocket {
	t.Helper()
	socks := f.sockets()
	require.NotEmpty(t, socks, "no socket opened")
	return socks[len(socks)-1]
}

type fakeSocket struct {
	session Session
	deliver func(Envelope)

	mu      sync.Mutex
	closes  int
	emitted []Command
}

func (s *fakeSocket) Emit(_ context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitted = append(s.emitted, cmd)
	return nil
}

func (s *fakeSocket) State() RealtimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return StateDisconnected
	}
	return StateConnected
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSocket) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *fakeSocket) commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.emitted...)
}

// push delivers event with data marshaled as its payload.
func (s *fakeSocket) push(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	s.deliver(Envelope{Event: event, Data: raw})
}

type stubResolver struct {
	names map[string]string
	err   error
	block chan struct{}
}

func (r *stubResolver) DisplayName(ctx context.Context, userID string) (string, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.err != nil {
		return "", r.err
	}
	return r.names[userID], nil
}

type stubHistory struct {
	mu    sync.Mutex
	calls int
	pages [][]Message
	err   error
}

func (h *stubHistory) History(_ context.Context, _ string) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	page := h.pages[h.calls%len(h.pages)]
	h.calls++
	return page, nil
}

type stubDisputes map[string]*Dispute

func (s stubDisputes) Get(_ context.Context, id string) (*Dispute, error) {
	d, ok := s[id]
	if !ok {
		return nil, &APIError{Status: 404, Message: "dispute not found"}
	}
	cp := cloneDispute(*d)
	return &cp, nil
}
