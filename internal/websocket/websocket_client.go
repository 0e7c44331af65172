package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/cantrips"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendQueue  = 256
)

var (
	errClosed    = errors.New(cantrips.ErrConnectionClosed)
	errQueueFull = errors.New(cantrips.ErrSendQueueFull)
)

// Client implements cantrips.Client over a gorilla connection.
type Client struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	logger      *slog.Logger
	mu          sync.RWMutex
	closed      bool
	closeMsg    []byte
	done        chan struct{}
	rateLimiter *rate.Limiter // Rate limiter for incoming messages
}

var _ cantrips.Client = (*Client)(nil)

// NewClient wraps conn and starts its write pump.
func NewClient(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()
	client := &Client{
		id:          id,
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, sendQueue),
		logger:      logger.With("client_id", id, "remote_addr", remoteAddr),
		done:        make(chan struct{}),
		rateLimiter: limiter,
	}

	go client.writePump()

	return client
}

// ID returns a unique identifier for the connected client
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the client's remote network address
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns the client's lifecycle context
func (c *Client) Context() context.Context {
	return c.ctx
}

// Send queues an encoded frame. It never blocks.
func (c *Client) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errClosed
	}
	select {
	case c.sendCh <- frame:
		return nil
	default:
		return errQueueFull
	}
}

// Close flushes queued frames, then sends a close frame with code and reason.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.closeMsg = websocket.FormatCloseMessage(code, reason)
	close(c.sendCh)
	c.cancel()
	return nil
}

// Done is closed once the socket is released.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsAlive returns true if the connection is still active
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// CheckRateLimit checks if the client has exceeded the rate limit
// Returns true if the message is allowed, false if rate limited
func (c *Client) CheckRateLimit() bool {
	if c.rateLimiter == nil {
		// Rate limiting disabled
		return true
	}
	return c.rateLimiter.Allow()
}

// writePump pumps frames from the send channel to the websocket connection.
// It owns every data write; the close frame is written once the queue drains.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.mu.RLock()
				msg := c.closeMsg
				c.mu.RUnlock()
				c.conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Write failed", "error", err)
				c.abort()
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}
		}
	}
}

// abort marks the client closed after a failed write.
func (c *Client) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
		c.cancel()
	}
}
