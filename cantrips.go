package cantrips

import (
	"context"
	"net/http"
)

// Server is a transport server that feeds the frames of each connection to a
// protocol and closes connections with the code the protocol decides.
//
// Example usage:
//
//	import "github.com/luciancaetano/cantrips/ws"
//
//	proto, _ := protocol.New(namespaces, router)
//	server := ws.New(":8080", proto, ws.DefaultRateLimitConfig(), ws.AllOrigins())
//	server.Start(ctx)
type Server interface {
	// Start begins listening for connections. The server runs until Stop is
	// called or ctx is cancelled.
	//
	// Returns an error if the server is already running or if the address
	// cannot be bound.
	Start(ctx context.Context) error

	// Stop closes every client connection and shuts the server down.
	Stop(ctx context.Context) error

	// Handler returns the HTTP handler serving the websocket endpoint, for
	// mounting on an existing mux.
	Handler() http.Handler
}

// Client represents one connected peer.
//
// A Client is the transport half of a protocol connection: it ships encoded
// frames to the peer and closes the socket with a protocol close code.
//
// Example usage:
//
//	if client.IsAlive() {
//	    client.Send(frame)
//	}
//	client.Close(cantrips.CloseFormatError, cantrips.ReasonFormatError)
type Client interface {
	// ID returns a unique identifier for the connected client.
	//
	// The ID is generated when the client connects and remains constant for
	// the lifetime of the connection.
	ID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Context returns the client's lifecycle context. It is cancelled when
	// the connection closes.
	Context() context.Context

	// Send queues one encoded frame for delivery. It never blocks: a full
	// queue is reported as an error.
	Send(frame []byte) error

	// Close sends a close frame with code and reason and releases the
	// connection. Closing twice is a no-op.
	//
	// Codes used by the protocol:
	//   - 1000 (CloseNormal): the handler ended the conversation
	//   - 3002 (CloseUnavailable): unknown or unavailable message
	//   - 3003 (CloseFormatError): malformed frame
	//   - 3011 (CloseInternalError): the server failed handling a message
	Close(code int, reason string) error

	// IsAlive returns true if the connection is still open.
	IsAlive() bool
}
