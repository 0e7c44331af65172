package protocol

import "github.com/luciancaetano/cantrips/messaging"

// Transport is the adapter side of a connection: whatever carries frames to
// the peer. Close must be safe to call more than once.
type Transport interface {
	Send(frame []byte) error
	Close(code int, reason string) error
}

// Handler holds the hooks a protocol runs for each connection.
type Handler interface {
	// Hello runs when the connection opens. It may already send messages.
	Hello(c *Conn) error
	// Process handles one accepted message. Returning false ends the
	// conversation: Goodbye runs and the connection closes with 1000.
	Process(c *Conn, m messaging.Message) (keepOpen bool, err error)
	// Invalid receives processing errors in non-strict mode. Returning false
	// ends the conversation like Process does.
	Invalid(c *Conn, err error) bool
	// Goodbye runs once before the connection goes away.
	Goodbye(c *Conn) error
}

// NopHandler keeps every connection open and closes it on the first invalid
// message. Embed it to implement only the hooks you need.
type NopHandler struct{}

// Hello does nothing.
func (NopHandler) Hello(*Conn) error { return nil }

// Process accepts the message.
func (NopHandler) Process(*Conn, messaging.Message) (bool, error) { return true, nil }

// Invalid asks for the connection to be closed.
func (NopHandler) Invalid(*Conn, error) bool { return false }

// Goodbye does nothing.
func (NopHandler) Goodbye(*Conn) error { return nil }

// Frame outcomes reported to an Observer.
const (
	FrameAccepted = "accepted"
	FrameInvalid  = "invalid"
	FrameClosed   = "closed"
	FrameIgnored  = "ignored"
)

// Observer receives connection and frame events, typically to export metrics.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	FrameProcessed(outcome string)
	CloseSent(code int)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()     {}
func (nopObserver) ConnectionClosed()     {}
func (nopObserver) FrameProcessed(string) {}
func (nopObserver) CloseSent(int)         {}
