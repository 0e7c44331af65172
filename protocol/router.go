package protocol

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/luciancaetano/cantrips/messaging"
)

// ErrUnhandled is returned by a Router for a message no route handles. The
// protocol treats it like an unknown command.
var ErrUnhandled = errors.New("no handler for message")

// HandlerFunc handles one message of a routed code.
type HandlerFunc func(c *Conn, m messaging.Message) (keepOpen bool, err error)

// Router is a Handler dispatching messages by code.
type Router struct {
	mu      sync.RWMutex
	routes  map[messaging.Code]HandlerFunc
	hello   func(*Conn) error
	goodbye func(*Conn) error
	invalid func(*Conn, error) bool
}

// NewRouter creates a router with no routes.
func NewRouter() *Router {
	return &Router{routes: make(map[messaging.Code]HandlerFunc)}
}

// Handle routes code to fn, replacing any previous route.
func (r *Router) Handle(code messaging.Code, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[code] = fn
}

// HandleFunc routes "namespace.command" to fn.
func (r *Router) HandleFunc(code string, fn HandlerFunc) error {
	c, err := messaging.ParseCode(code)
	if err != nil {
		return err
	}
	r.Handle(c, fn)
	return nil
}

// SetHello sets the hook run when a connection opens.
func (r *Router) SetHello(fn func(*Conn) error) { r.hello = fn }

// SetGoodbye sets the hook run before a connection goes away.
func (r *Router) SetGoodbye(fn func(*Conn) error) { r.goodbye = fn }

// SetInvalid sets the non-strict error hook.
func (r *Router) SetInvalid(fn func(*Conn, error) bool) { r.invalid = fn }

// Routes returns the routed codes, sorted.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.routes))
	for code := range maps.Keys(r.routes) {
		out = append(out, code.String())
	}
	slices.Sort(out)
	return out
}

// Hello runs the hello hook, if any.
func (r *Router) Hello(c *Conn) error {
	if r.hello == nil {
		return nil
	}
	return r.hello(c)
}

// Process runs the route of m's code.
func (r *Router) Process(c *Conn, m messaging.Message) (bool, error) {
	r.mu.RLock()
	fn, ok := r.routes[m.Code()]
	r.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnhandled, m.Code())
	}
	return fn(c, m)
}

// Invalid runs the invalid hook. Without one the connection is closed.
func (r *Router) Invalid(c *Conn, err error) bool {
	if r.invalid == nil {
		return false
	}
	return r.invalid(c, err)
}

// Goodbye runs the goodbye hook, if any.
func (r *Router) Goodbye(c *Conn) error {
	if r.goodbye == nil {
		return nil
	}
	return r.goodbye(c)
}
