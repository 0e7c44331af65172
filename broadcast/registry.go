package broadcast

import (
	"errors"
	"fmt"

	"github.com/luciancaetano/cantrips/messaging"
)

var (
	// ErrDuplicateMember is returned when a key is already registered.
	ErrDuplicateMember = errors.New("member already registered")
	// ErrUnknownMember is returned when a key or instance is not registered.
	ErrUnknownMember = errors.New("member not registered")
)

// Conn is the connection an endpoint notifies through.
type Conn interface {
	// ID identifies the connection for its whole lifetime.
	ID() string
	// Send delivers one command to the remote peer.
	Send(namespace, command string, args []any, kwargs messaging.Kwargs) error
}

// Endpoint is a logged-in user bound to exactly one connection.
type Endpoint struct {
	key  string
	conn Conn
}

// Key returns the unique user key.
func (e *Endpoint) Key() string { return e.key }

// Conn returns the connection the endpoint owns.
func (e *Endpoint) Conn() Conn { return e.conn }

// Notify sends one command to the endpoint's connection.
func (e *Endpoint) Notify(code messaging.Code, args []any, kwargs messaging.Kwargs) error {
	return e.conn.Send(code.Namespace, code.Command, args, kwargs)
}

// InsertFunc observes insertions into a Registry.
type InsertFunc func(e *Endpoint)

// RemoveFunc observes removals from a Registry. byValue reports whether the
// member was removed by instance rather than by key.
type RemoveFunc func(e *Endpoint, byValue bool)

// Registry is an ordered, key-unique list of endpoints.
//
// Observers run synchronously, in registration order, after the membership
// change and before the mutating call returns. Registry does no locking of
// its own; the Group owning it serializes access.
type Registry struct {
	order []*Endpoint
	index map[string]*Endpoint

	onInsert []InsertFunc
	onRemove []RemoveFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]*Endpoint)}
}

// OnInsert subscribes fn to insert events.
func (r *Registry) OnInsert(fn InsertFunc) {
	r.onInsert = append(r.onInsert, fn)
}

// OnRemove subscribes fn to remove events.
func (r *Registry) OnRemove(fn RemoveFunc) {
	r.onRemove = append(r.onRemove, fn)
}

// Create builds a new endpoint for conn and inserts it.
func (r *Registry) Create(key string, conn Conn) (*Endpoint, error) {
	if key == "" {
		return nil, fmt.Errorf("endpoint key must not be empty")
	}
	if conn == nil {
		return nil, fmt.Errorf("endpoint %q needs a connection", key)
	}
	e := &Endpoint{key: key, conn: conn}
	if err := r.Insert(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Insert adds an existing endpoint.
func (r *Registry) Insert(e *Endpoint) error {
	if e == nil {
		return fmt.Errorf("%w: nil endpoint", ErrUnknownMember)
	}
	if _, ok := r.index[e.key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMember, e.key)
	}

	r.index[e.key] = e
	r.order = append(r.order, e)

	for _, fn := range r.onInsert {
		fn(e)
	}
	return nil
}

// Remove deletes the member registered under key.
func (r *Registry) Remove(key string) (*Endpoint, error) {
	e, ok := r.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, key)
	}
	r.remove(e, false)
	return e, nil
}

// RemoveEndpoint deletes e. It fails when e is not the very instance
// registered under its key.
func (r *Registry) RemoveEndpoint(e *Endpoint) error {
	if e == nil || r.index[e.key] != e {
		return fmt.Errorf("%w: instance not in registry", ErrUnknownMember)
	}
	r.remove(e, true)
	return nil
}

func (r *Registry) remove(e *Endpoint, byValue bool) {
	delete(r.index, e.key)
	for i, member := range r.order {
		if member == e {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	for _, fn := range r.onRemove {
		fn(e, byValue)
	}
}

// Get returns the member registered under key.
func (r *Registry) Get(key string) (*Endpoint, error) {
	e, ok := r.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, key)
	}
	return e, nil
}

// Contains reports whether key is registered.
func (r *Registry) Contains(key string) bool {
	_, ok := r.index[key]
	return ok
}

// Owns reports whether e is the instance registered under its key.
func (r *Registry) Owns(e *Endpoint) bool {
	return e != nil && r.index[e.key] == e
}

// Keys returns member keys in insertion order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	for i, e := range r.order {
		keys[i] = e.key
	}
	return keys
}

// Endpoints returns members in insertion order.
func (r *Registry) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of members.
func (r *Registry) Len() int {
	return len(r.order)
}
