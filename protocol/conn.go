package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/messaging"
)

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New(cantrips.ErrConnectionClosed)

// Outcome tells the transport what became of a frame or a hook.
type Outcome struct {
	Closed bool
	Code   int
	Reason string
}

// Conn is one connection of a Protocol.
//
// Process is called by the transport's read loop, one frame at a time. Send
// may be called from any goroutine.
type Conn struct {
	id        string
	proto     *Protocol
	transport Transport
	logger    *slog.Logger

	mu        sync.Mutex
	closed    bool
	outcome   Outcome
	said      bool
	connected bool
	values    map[string]any
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Protocol returns the protocol the connection speaks.
func (c *Conn) Protocol() *Protocol { return c.proto }

// Logger returns the connection logger.
func (c *Conn) Logger() *slog.Logger { return c.logger }

// Send builds a message of namespace.command and writes it to the peer. It
// fails for unknown commands and for commands that may not travel to a
// client.
func (c *Conn) Send(namespace, command string, args []any, kwargs messaging.Kwargs) error {
	msg, err := c.proto.namespaces.Build(messaging.Code{Namespace: namespace, Command: command}, args, kwargs)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// SendMessage writes a built message to the peer.
func (c *Conn) SendMessage(m messaging.Message) error {
	frame, err := c.proto.namespaces.Encode(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Code(), err)
	}

	if c.Closed() {
		return ErrClosed
	}
	return c.transport.Send(frame)
}

// OnConnect runs the Hello hook. Hook errors close the connection.
func (c *Conn) OnConnect() Outcome {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.proto.observer.ConnectionOpened()

	if err := c.proto.handler.Hello(c); err != nil {
		return c.fail(err)
	}
	return c.current()
}

// Process decodes one frame received from the peer and dispatches it.
func (c *Conn) Process(frame []byte) Outcome {
	if c.Closed() {
		c.proto.observer.FrameProcessed(FrameIgnored)
		return c.current()
	}

	msg, err := c.proto.namespaces.Decode(frame, true)
	if err != nil {
		return c.reject(err)
	}

	keepOpen, err := c.proto.handler.Process(c, msg)
	if err != nil {
		return c.reject(err)
	}
	if !keepOpen {
		c.proto.observer.FrameProcessed(FrameClosed)
		return c.farewell()
	}

	c.proto.observer.FrameProcessed(FrameAccepted)
	return c.current()
}

// OnDisconnect runs the Goodbye hook if it has not run yet. Transports call
// it once the socket is gone, whoever closed it.
func (c *Conn) OnDisconnect() {
	c.mu.Lock()
	c.closed = true
	connected := c.connected
	c.connected = false
	c.mu.Unlock()

	if err := c.goodbye(); err != nil {
		c.logger.Warn("Goodbye failed after disconnect", "error", err)
	}
	if connected {
		c.proto.observer.ConnectionClosed()
	}
}

// Close closes the transport with code and reason. Only the first call
// reaches the transport.
func (c *Conn) Close(code int, reason string) Outcome {
	c.mu.Lock()
	if c.closed {
		out := c.outcome
		c.mu.Unlock()
		return out
	}
	c.closed = true
	c.outcome = Outcome{Closed: true, Code: code, Reason: reason}
	out := c.outcome
	c.mu.Unlock()

	c.proto.observer.CloseSent(code)
	if err := c.transport.Close(code, reason); err != nil {
		c.logger.Debug("Transport close failed", "code", code, "error", err)
	}
	return out
}

// Closed reports whether the connection was closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Value returns a per-connection attribute.
func (c *Conn) Value(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// SetValue stores a per-connection attribute.
func (c *Conn) SetValue(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Values returns a copy of the per-connection attributes.
func (c *Conn) Values() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.values)
}

func (c *Conn) current() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// reject handles an error raised while decoding or processing a frame.
func (c *Conn) reject(err error) Outcome {
	if !c.proto.strict {
		if c.proto.handler.Invalid(c, err) {
			c.logger.Debug("Invalid frame tolerated", "error", err)
			c.proto.observer.FrameProcessed(FrameInvalid)
			return c.current()
		}
		c.proto.observer.FrameProcessed(FrameClosed)
		return c.farewell()
	}
	c.proto.observer.FrameProcessed(FrameClosed)
	return c.fail(err)
}

// fail closes the connection with the code err maps to.
func (c *Conn) fail(err error) Outcome {
	code, reason := CloseCode(err)
	if code == cantrips.CloseInternalError {
		c.logger.Error("Cannot fulfill request", "error", err)
	} else {
		c.logger.Debug(reason, "error", err)
	}
	return c.Close(code, reason)
}

// farewell runs Goodbye and closes normally.
func (c *Conn) farewell() Outcome {
	if err := c.goodbye(); err != nil {
		return c.fail(err)
	}
	return c.Close(cantrips.CloseNormal, "")
}

func (c *Conn) goodbye() error {
	c.mu.Lock()
	if c.said {
		c.mu.Unlock()
		return nil
	}
	c.said = true
	c.mu.Unlock()

	return c.proto.handler.Goodbye(c)
}
