package gigboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// ============================================================================
// Test server
// ============================================================================

type socketServer struct {
	*httptest.Server

	mu       sync.Mutex
	query    map[string]string
	auth     string
	received []Envelope
	conns    chan *websocket.Conn
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()
	s := &socketServer{conns: make(chan *websocket.Conn, 4)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/socket" {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		s.query = map[string]string{
			"userId": r.URL.Query().Get("userId"),
			"token":  r.URL.Query().Get("token"),
		}
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				s.mu.Lock()
				s.received = append(s.received, env)
				s.mu.Unlock()
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *socketServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func (s *socketServer) send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, frame))
}

func (s *socketServer) commands() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.received...)
}

// ============================================================================
// WSTransport
// ============================================================================

func TestWSTransportSocketURL(t *testing.T) {
	tr := NewWSTransport("https://api.gigboard.dev/", nil)
	assert.Equal(t, "wss://api.gigboard.dev/socket?token=tok&userId=u1", tr.SocketURL(Session{UserID: "u1", Token: "tok"}))

	tr = NewWSTransport("http://localhost:5000", &RealtimeConfig{URL: "ws://rt.local", Path: "/ws"})
	assert.Equal(t, "ws://rt.local/ws?userId=u1", tr.SocketURL(Session{UserID: "u1"}))
}

func TestWSTransportRoundTrip(t *testing.T) {
	srv := newSocketServer(t)
	tr := NewWSTransport(srv.URL, &RealtimeConfig{HeartbeatInterval: time.Hour})

	var mu sync.Mutex
	var got []string
	deliver := func(env Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env.Event)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sock, err := tr.Open(ctx, Session{UserID: "u1", Token: "tok"}, deliver)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, sock.State())

	conn := srv.accept(t)
	srv.mu.Lock()
	assert.Equal(t, "u1", srv.query["userId"])
	assert.Equal(t, "Bearer tok", srv.auth)
	srv.mu.Unlock()

	t.Run("frames are delivered in order", func(t *testing.T) {
		srv.send(t, conn, EventOnlineUsers, []string{"u1"})
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
		srv.send(t, conn, EventNewMessage, map[string]string{"senderId": "u2", "message": "hi"})
		srv.send(t, conn, EventNewNotification, map[string]string{"title": "t"})

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 3
		}, 2*time.Second, 10*time.Millisecond)
		mu.Lock()
		assert.Equal(t, []string{EventOnlineUsers, EventNewMessage, EventNewNotification}, got)
		mu.Unlock()
	})

	t.Run("emit writes an envelope", func(t *testing.T) {
		require.NoError(t, sock.Emit(ctx, JoinCommand{RoomID: "room-1"}))
		require.Eventually(t, func() bool { return len(srv.commands()) == 1 }, 2*time.Second, 10*time.Millisecond)

		env := srv.commands()[0]
		assert.Equal(t, CommandJoin, env.Event)
		assert.JSONEq(t, `"room-1"`, string(env.Data))
	})

	t.Run("close", func(t *testing.T) {
		sock.Close()
		require.NoError(t, sock.Close())
		assert.Equal(t, StateDisconnected, sock.State())
		assert.ErrorIs(t, sock.Emit(ctx, JoinCommand{RoomID: "x"}), ErrNotConnected)
	})
}

func TestWSTransportCloseWaitsForDeliver(t *testing.T) {
	srv := newSocketServer(t)
	tr := NewWSTransport(srv.URL, &RealtimeConfig{HeartbeatInterval: time.Hour})

	entered := make(chan struct{})
	release := make(chan struct{})
	sock, err := tr.Open(context.Background(), Session{UserID: "u1"}, func(Envelope) {
		close(entered)
		<-release
	})
	require.NoError(t, err)

	srv.send(t, srv.accept(t), EventNewNotification, map[string]string{"title": "t"})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not delivered")
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		sock.Close()
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a frame was being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return after delivery finished")
	}
	assert.Equal(t, StateDisconnected, sock.State())
}

func TestWSTransportDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr := NewWSTransport(srv.URL, nil)
	_, err := tr.Open(context.Background(), Session{UserID: "u1"}, func(Envelope) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket dial")
}

func TestWSTransportReconnect(t *testing.T) {
	srv := newSocketServer(t)
	tr := NewWSTransport(srv.URL, &RealtimeConfig{
		AutoReconnect:      true,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  20 * time.Millisecond,
		HeartbeatInterval:  time.Hour,
	})

	var mu sync.Mutex
	var got []string
	sock, err := tr.Open(context.Background(), Session{UserID: "u1"}, func(env Envelope) {
		mu.Lock()
		got = append(got, env.Event)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sock.Close()

	first := srv.accept(t)
	first.Close(websocket.StatusGoingAway, "restart")

	second := srv.accept(t)
	require.Eventually(t, func() bool { return sock.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)
	srv.send(t, second, EventNewNotification, map[string]string{"title": "back"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectorBackoff(t *testing.T) {
	r := newReconnector(&RealtimeConfig{
		ReconnectBaseDelay:   100 * time.Millisecond,
		ReconnectMaxDelay:    time.Second,
		MaxReconnectAttempts: 3,
	})

	var delays []time.Duration
	for r.shouldReconnect() {
		delays = append(delays, r.nextDelay())
	}
	require.Len(t, delays, 3)
	assert.GreaterOrEqual(t, delays[1], 200*time.Millisecond)
	assert.LessOrEqual(t, delays[2], time.Second)

	forever := newReconnector(&RealtimeConfig{ReconnectBaseDelay: time.Millisecond, ReconnectMaxDelay: time.Millisecond, MaxReconnectAttempts: -1})
	for i := 0; i < 100; i++ {
		forever.nextDelay()
	}
	assert.True(t, forever.shouldReconnect())
}
