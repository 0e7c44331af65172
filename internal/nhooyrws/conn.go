// Package nhooyrws serves a protocol over nhooyr.io/websocket. It is the
// alternative to the gorilla engine and shares its close semantics: queued
// frames are flushed before the close frame.
package nhooyrws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/protocol"
)

const sendQueue = 256

var (
	errClosed    = errors.New(cantrips.ErrConnectionClosed)
	errQueueFull = errors.New(cantrips.ErrSendQueueFull)
)

// Conn wraps a WebSocket connection with read/write pumps.
type Conn struct {
	id         string
	ws         *websocket.Conn
	remoteAddr string
	ctx        context.Context
	cancel     context.CancelFunc
	send       chan []byte
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu          sync.RWMutex
	closed      bool
	closeCode   websocket.StatusCode
	closeReason string
}

var _ cantrips.Client = (*Conn)(nil)

func newConn(ws *websocket.Conn, remoteAddr string, limiter *rate.Limiter, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Conn{
		id:         id,
		ws:         ws,
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan []byte, sendQueue),
		limiter:    limiter,
		logger:     logger.With("client_id", id, "remote_addr", remoteAddr),
		closeCode:  websocket.StatusNormalClosure,
	}
}

// ID returns the connection's UUID.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Context is cancelled once the connection closes.
func (c *Conn) Context() context.Context { return c.ctx }

// IsAlive reports whether Close has not been called yet.
func (c *Conn) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send queues an encoded frame. It never blocks.
func (c *Conn) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errQueueFull
	}
}

// Close flushes queued frames, then closes with code and reason.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = websocket.StatusCode(code)
	c.closeReason = reason
	close(c.send)
	return nil
}

// run drives pc until the socket goes away. It blocks.
func (c *Conn) run(pc *protocol.Conn, maxFrameSize int64) (voluntary bool) {
	defer c.cancel()
	c.ws.SetReadLimit(maxFrameSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	voluntary = c.readPump(pc)
	pc.OnDisconnect()
	c.Close(cantrips.CloseNormal, "")
	wg.Wait()
	return voluntary
}

// readPump feeds frames to pc and reports whether the peer left on its own.
func (c *Conn) readPump(pc *protocol.Conn) bool {
	if out := pc.OnConnect(); out.Closed {
		return false
	}

	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.logger.Debug("Connection closed normally")
			} else if c.IsAlive() {
				c.logger.Warn("Read error", "error", err)
			}
			return c.IsAlive()
		}

		if typ != websocket.MessageText {
			c.Close(int(websocket.StatusUnsupportedData), "text frames only")
			return false
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn("Rate limit exceeded")
			c.Close(int(websocket.StatusPolicyViolation), cantrips.ErrRateLimitExceeded)
			return false
		}
		if out := pc.Process(data); out.Closed {
			return false
		}
	}
}

// writePump owns every write. The close handshake starts once the queue drains.
func (c *Conn) writePump() {
	for data := range c.send {
		if err := c.ws.Write(c.ctx, websocket.MessageText, data); err != nil {
			c.logger.Debug("Write failed", "error", err)
			c.cancel()
			c.Close(cantrips.CloseNormal, "")
			for range c.send {
			}
			return
		}
	}

	c.mu.RLock()
	code, reason := c.closeCode, c.closeReason
	c.mu.RUnlock()
	if err := c.ws.Close(code, reason); err != nil {
		c.logger.Debug("Close handshake failed", "error", err)
	}
	c.cancel()
}
