// Package protocol is the boundary between a transport and the command
// layer. A Protocol owns a NamespaceSet and a Handler; each accepted
// connection becomes a Conn that decodes inbound frames, dispatches them to
// the handler and decides when and with which code the transport closes.
//
//	proto, _ := protocol.New(namespaces, router, protocol.WithLogger(logger))
//	conn := proto.Accept(id, transport)
//	conn.OnConnect()
//	for frame := range frames {
//	    if out := conn.Process(frame); out.Closed {
//	        break
//	    }
//	}
//	conn.OnDisconnect()
package protocol

import (
	"errors"
	"log/slog"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/messaging"
)

// Option configures a Protocol.
type Option func(*Protocol)

// WithStrict selects strict processing (the default): processing errors close
// the connection with a code derived from the error. In non-strict mode
// errors go to the handler's Invalid hook.
func WithStrict(strict bool) Option {
	return func(p *Protocol) { p.strict = strict }
}

// WithLogger sets the protocol logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver sets the observer of connection and frame events.
func WithObserver(o Observer) Option {
	return func(p *Protocol) {
		if o != nil {
			p.observer = o
		}
	}
}

// Protocol is shared by every connection speaking it.
type Protocol struct {
	namespaces *messaging.NamespaceSet
	handler    Handler
	strict     bool
	logger     *slog.Logger
	observer   Observer
}

// New creates a protocol over namespaces dispatching to handler.
func New(namespaces *messaging.NamespaceSet, handler Handler, opts ...Option) (*Protocol, error) {
	if namespaces == nil {
		return nil, errors.New("protocol requires a namespace set")
	}
	if handler == nil {
		handler = NopHandler{}
	}

	p := &Protocol{
		namespaces: namespaces,
		handler:    handler,
		strict:     true,
		logger:     slog.Default(),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "protocol")
	return p, nil
}

// Namespaces returns the protocol's namespace set.
func (p *Protocol) Namespaces() *messaging.NamespaceSet { return p.namespaces }

// Strict reports whether the protocol runs in strict mode.
func (p *Protocol) Strict() bool { return p.strict }

// Accept wraps transport into a connection. id must be unique among live
// connections.
func (p *Protocol) Accept(id string, transport Transport) *Conn {
	return &Conn{
		id:        id,
		proto:     p,
		transport: transport,
		logger:    p.logger.With("conn_id", id),
		values:    make(map[string]any),
	}
}

// CloseCode returns the close code and reason for a processing error:
// 3003 for malformed envelopes, 3002 for unknown, unroutable or
// wrong-direction messages and 3011 for anything else.
func CloseCode(err error) (int, string) {
	switch {
	case messaging.IsInvalidFormat(err):
		return cantrips.CloseFormatError, cantrips.ReasonFormatError
	case messaging.IsProtocolViolation(err), errors.Is(err, ErrUnhandled):
		return cantrips.CloseUnavailable, cantrips.ReasonUnavailable
	default:
		return cantrips.CloseInternalError, cantrips.ReasonInternalError
	}
}
