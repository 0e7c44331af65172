package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/cantrips"
	codec "github.com/luciancaetano/cantrips/internal/protocol"
	"github.com/luciancaetano/cantrips/protocol"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
// Use this to implement CORS policies for your WebSocket server.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called when a new client connects, after the WebSocket
// handshake and before the protocol's hello hook runs.
type OnConnectFn = func(client cantrips.Client)

// OnClientDisconnectFn is a callback type invoked when a connected client disconnects from the server.
// The function receives the disconnected client and a boolean that is true when the disconnect was
// initiated by the client (voluntary), and false for protocol or server-initiated disconnects.
type OnClientDisconnectFn = func(client cantrips.Client, voluntary bool)

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr     string
	Path     string // websocket endpoint, "/ws" when empty
	Protocol *protocol.Protocol

	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	MaxFrameSize       int64 // read limit per frame, the codec maximum when <= 0
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	// Metrics, when set, is served at MetricsPath ("/metrics" when empty).
	Metrics     http.Handler
	MetricsPath string

	Logger *slog.Logger
}

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server implements cantrips.Server with gorilla/websocket. Every frame a
// client sends is processed by the configured protocol, and the connection
// is closed with the code the protocol returns.
type Server struct {
	addr    string
	path    string
	server  *http.Server
	clients sync.Map // map[string]*Client
	proto   *protocol.Protocol

	metrics     http.Handler
	metricsPath string

	// Rate limiting configuration
	rateLimitConfig *RateLimitConfig
	maxFrameSize    int64

	mu           sync.RWMutex
	running      bool
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn
	logger       *slog.Logger
}

var _ cantrips.Server = (*Server)(nil)

// New creates a new WebSocket server instance with the specified configuration.
//
// The server uses the Gorilla WebSocket library with read/write buffer sizes of 1024 bytes.
// Rate limiting is applied per-client using a token bucket algorithm. A nil
// RateLimitConfig selects DefaultRateLimitConfig().
//
// Example:
//
//	server := New(&ServerConfig{
//	    Addr:     ":8080",
//	    Protocol: proto,
//	    OnConnect: func(client cantrips.Client) {
//	        log.Printf("Client connected: %s", client.ID())
//	    },
//	})
func New(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = codec.MaxFrameSize
	}

	return &Server{
		addr:            cfg.Addr,
		path:            cfg.Path,
		proto:           cfg.Protocol,
		metrics:         cfg.Metrics,
		metricsPath:     cfg.MetricsPath,
		rateLimitConfig: cfg.RateLimitConfig,
		maxFrameSize:    cfg.MaxFrameSize,
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnClientDisconnect,
		logger:          logger.With("component", "websocket", "engine", "gorilla"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
}

// Handler returns the mux serving the websocket endpoint and, when
// configured, the metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle(s.metricsPath, s.metrics)
	}
	return mux
}

// Start starts the WebSocket server
func (s *Server) Start(ctx context.Context) error {
	if s.proto == nil {
		return errors.New("websocket server requires a protocol")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(cantrips.ErrServerAlreadyRunning)
	}
	s.running = true
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Check for immediate startup errors with a small timeout
	select {
	case err := <-errChan:
		// Reset running state without calling Stop to avoid deadlock
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("Server listening", "addr", s.addr, "path", s.path)
		return nil
	}
}

// Stop stops the WebSocket server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	// Close all client connections
	s.clients.Range(func(_, value any) bool {
		if client, ok := value.(*Client); ok {
			client.Close(websocket.CloseGoingAway, "server shutting down")
		}
		return true
	})

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleWebSocket handles incoming WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.proto == nil {
		http.Error(w, "No protocol configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied to the client
		s.logger.Debug("Upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(s.maxFrameSize)

	client := NewClient(conn, r.RemoteAddr, s.rateLimitConfig, s.logger)
	s.clients.Store(client.ID(), client)

	// Start reading messages from client
	go s.handleClient(client)
}

// handleClient feeds a client's frames to its protocol connection
func (s *Server) handleClient(client *Client) {
	pc := s.proto.Accept(client.ID(), client)
	voluntary := true

	defer func() {
		pc.OnDisconnect()
		if s.onDisconnect != nil {
			s.onDisconnect(client, voluntary)
		}
		s.clients.Delete(client.ID())
		client.Close(cantrips.CloseNormal, "")
	}()

	// Set read deadline to prevent indefinite blocking
	client.conn.SetReadDeadline(time.Now().Add(pongWait))

	// Set pong handler to reset read deadline on pong
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(client)
	}
	if out := pc.OnConnect(); out.Closed {
		voluntary = false
		return
	}

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Unexpected WebSocket close error", "client_id", client.ID(), "error", err)
			}
			if !client.IsAlive() {
				voluntary = false
			}
			return
		}

		// Reset read deadline after successful read
		client.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !client.CheckRateLimit() {
			s.logger.Warn("Rate limit exceeded", "client_id", client.ID(), "remote_addr", client.RemoteAddr())
			client.Close(websocket.ClosePolicyViolation, cantrips.ErrRateLimitExceeded)
			voluntary = false
			return
		}

		if out := pc.Process(data); out.Closed {
			voluntary = false
			return
		}
	}
}

// GetClient returns a client by ID
func (s *Server) GetClient(id string) (*Client, bool) {
	if client, ok := s.clients.Load(id); ok {
		return client.(*Client), true
	}
	return nil, false
}

// SendToClient queues an encoded frame for a specific client
func (s *Server) SendToClient(clientID string, frame []byte) error {
	client, ok := s.GetClient(clientID)
	if !ok {
		return fmt.Errorf("%s: %s", cantrips.ErrClientNotFound, clientID)
	}
	return client.Send(frame)
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
