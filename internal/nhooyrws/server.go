package nhooyrws

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	codec "github.com/luciancaetano/cantrips/internal/protocol"
	"github.com/luciancaetano/cantrips/protocol"
)

// Config configures a Handler.
type Config struct {
	Protocol *protocol.Protocol

	// Limit and Burst configure the per-connection token bucket. A zero
	// Limit disables rate limiting.
	Limit rate.Limit
	Burst int

	// OriginPatterns lists the cross-origin hosts accepted during the
	// handshake. "*" accepts every origin.
	OriginPatterns []string

	// MaxFrameSize is the read limit per frame. Values <= 0 mean the codec
	// maximum, not the library's 32 KiB default.
	MaxFrameSize int64

	OnDisconnect func(id string, voluntary bool)
	Logger       *slog.Logger
}

// Handler upgrades requests and serves the protocol on each connection.
type Handler struct {
	cfg    Config
	logger *slog.Logger
	conns  sync.Map // id -> *Conn
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = codec.MaxFrameSize
	}
	return &Handler{cfg: cfg, logger: logger.With("component", "websocket", "engine", "nhooyr")}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Protocol == nil {
		http.Error(w, "No protocol configured", http.StatusServiceUnavailable)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns}
	for _, p := range h.cfg.OriginPatterns {
		if p == "*" {
			opts.InsecureSkipVerify = true
		}
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	var limiter *rate.Limiter
	if h.cfg.Limit > 0 {
		limiter = rate.NewLimiter(h.cfg.Limit, h.cfg.Burst)
	}
	c := newConn(ws, r.RemoteAddr, limiter, h.logger)
	h.conns.Store(c.ID(), c)
	defer h.conns.Delete(c.ID())

	c.logger.Debug("New WebSocket connection")
	voluntary := c.run(h.cfg.Protocol.Accept(c.ID(), c), h.cfg.MaxFrameSize)
	if h.cfg.OnDisconnect != nil {
		h.cfg.OnDisconnect(c.ID(), voluntary)
	}
}

// CloseAll closes every open connection with code and reason.
func (h *Handler) CloseAll(code int, reason string) {
	h.conns.Range(func(_, v any) bool {
		v.(*Conn).Close(code, reason)
		return true
	})
}

// Len returns the number of open connections.
func (h *Handler) Len() int {
	n := 0
	h.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
