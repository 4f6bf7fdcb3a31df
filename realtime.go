package gigboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Transport contract
// ============================================================================

// Transport opens realtime sockets. deliver is called for every inbound frame,
// in receive order, from a single goroutine owned by the socket.
type Transport interface {
	Open(ctx context.Context, sess Session, deliver func(Envelope)) (Socket, error)
}

// Socket is one open realtime connection. Only the ConnectionManager holds a
// Socket; everything else talks to the manager. Close returns after any
// in-flight deliver call has returned and no further one will start.
type Socket interface {
	Emit(ctx context.Context, cmd Command) error
	State() RealtimeState
	Close() error
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the websocket transport.
type RealtimeConfig struct {
	// URL overrides the socket base URL. Empty derives it from the API base
	// URL by swapping http(s) for ws(s).
	URL           string
	Path          string
	AutoReconnect bool
	// MaxReconnectAttempts bounds redials per outage; negative retries forever.
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	ReadLimit            int64
	HTTPClient           *http.Client
	Logger               *zap.Logger
}

func (c *RealtimeConfig) defaults() {
	if c.Path == "" {
		c.Path = "/socket"
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

// nextDelay grows exponentially with jitter. A connection that stayed up for
// a minute resets the attempt counter.
func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// WSTransport
// ============================================================================

// WSTransport is the websocket Transport. Frames are JSON envelopes
// {"event": name, "data": payload}.
type WSTransport struct {
	baseURL string
	config  *RealtimeConfig
}

// NewWSTransport creates a websocket transport for the given API or socket
// base URL. config may be nil.
func NewWSTransport(baseURL string, config *RealtimeConfig) *WSTransport {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	if cfg.URL != "" {
		baseURL = cfg.URL
	}
	return &WSTransport{baseURL: strings.TrimRight(baseURL, "/"), config: &cfg}
}

// SocketURL returns the URL dialed for sess. The user id identifies the
// connection; the token authenticates it.
func (t *WSTransport) SocketURL(sess Session) string {
	base := strings.Replace(t.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	q := url.Values{}
	q.Set("userId", sess.UserID)
	if sess.Token != "" {
		q.Set("token", sess.Token)
	}
	return base + t.config.Path + "?" + q.Encode()
}

// Open dials the socket. ctx bounds the dial only; the socket lives until
// Close.
func (t *WSTransport) Open(ctx context.Context, sess Session, deliver func(Envelope)) (Socket, error) {
	s := &wsSocket{
		url:     t.SocketURL(sess),
		token:   sess.Token,
		config:  t.config,
		deliver: deliver,
		log:     t.config.Logger.With(zap.String("user_id", sess.UserID)),
		state:   StateConnecting,
		recon:   newReconnector(t.config),
		done:    make(chan struct{}),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.conn = conn
	s.cancelFn = cancel
	s.state = StateConnected
	s.mu.Unlock()
	s.recon.markConnected()
	s.log.Debug("socket connected")

	go s.run(runCtx, conn)
	return s, nil
}

// ============================================================================
// wsSocket
// ============================================================================

type wsSocket struct {
	url     string
	token   string
	config  *RealtimeConfig
	deliver func(Envelope)
	log     *zap.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	cancelFn         context.CancelFunc
	recon            *reconnector
	done             chan struct{}
}

func (s *wsSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPClient: s.config.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(s.config.ReadLimit)
	return conn, nil
}

// State returns the current connection state.
func (s *wsSocket) State() RealtimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *wsSocket) setState(state RealtimeState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *wsSocket) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentionalClose
}

// Emit writes one command frame.
func (s *wsSocket) Emit(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := encodeCommand(cmd)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", cmd.EventName(), err)
	}
	return nil
}

// Close closes the connection, stops any reconnect attempt and waits for the
// read goroutine to exit, including a deliver call in progress. It must not be
// called from inside deliver.
func (s *wsSocket) Close() error {
	s.mu.Lock()
	if s.intentionalClose {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.intentionalClose = true
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	<-s.done
	return err
}

// run reads from conn until it fails, then redials while the retry policy
// allows.
func (s *wsSocket) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	for {
		s.readLoop(ctx, conn)
		if s.closing() {
			return
		}

		s.mu.Lock()
		s.conn = nil
		s.state = StateDisconnected
		s.mu.Unlock()

		if !s.config.AutoReconnect {
			return
		}
		conn = s.redial(ctx)
		if conn == nil {
			s.setState(StateDisconnected)
			return
		}
	}
}

func (s *wsSocket) readLoop(ctx context.Context, conn *websocket.Conn) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeatLoop(hbCtx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !s.closing() {
				s.log.Warn("socket read failed", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.log.Debug("dropping unreadable frame", zap.Int("bytes", len(data)))
			continue
		}
		if s.closing() {
			return
		}
		s.deliver(env)
	}
}

func (s *wsSocket) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				s.log.Warn("heartbeat failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (s *wsSocket) redial(ctx context.Context) *websocket.Conn {
	for s.recon.shouldReconnect() {
		delay := s.recon.nextDelay()
		s.setState(StateReconnecting)
		s.log.Info("reconnecting", zap.Int("attempt", s.recon.attempt), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.log.Warn("reconnect failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.intentionalClose {
			s.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "client disconnect")
			return nil
		}
		s.conn = conn
		s.state = StateConnected
		s.mu.Unlock()
		s.recon.markConnected()
		return conn
	}
	s.log.Error("giving up on reconnect", zap.Int("attempts", s.recon.attempt))
	return nil
}
