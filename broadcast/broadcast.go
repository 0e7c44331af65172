package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/luciancaetano/cantrips/messaging"
)

// Criterion decides whether a member receives a broadcast.
type Criterion func(e *Endpoint, code messaging.Code, args []any, kwargs messaging.Kwargs) bool

// AllowAll delivers to every member.
func AllowAll(*Endpoint, messaging.Code, []any, messaging.Kwargs) bool {
	return true
}

// Others delivers to every member except the one registered under key.
func Others(key string) Criterion {
	return func(e *Endpoint, _ messaging.Code, _ []any, _ messaging.Kwargs) bool {
		return e.key != key
	}
}

// Option configures a Group or a Master.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for delivery failures and cascades.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Group is a keyed set of endpoints that can be notified one by one or
// all at once.
//
// A Group does not lock on every call. Callers that share it between
// goroutines run their whole operation inside Do, so that a check and the
// mutation it guards, and every cascade and notification the mutation
// triggers, happen under one mutex.
type Group struct {
	key    string
	mu     *sync.Mutex
	list   *Registry
	logger *slog.Logger
}

func newGroup(key string, mu *sync.Mutex, logger *slog.Logger) *Group {
	return &Group{
		key:    key,
		mu:     mu,
		list:   NewRegistry(),
		logger: logger,
	}
}

// NewGroup creates a standalone group with its own mutex. Members are added
// through Registry().Create or Registry().Insert.
func NewGroup(key string, opts ...Option) *Group {
	o := buildOptions(opts)
	return newGroup(key, &sync.Mutex{}, o.logger)
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Key returns the group key.
func (b *Group) Key() string { return b.key }

// Registry returns the underlying member list.
func (b *Group) Registry() *Registry { return b.list }

// Do runs fn holding the group's mutex. A master and its slaves share
// the same mutex.
func (b *Group) Do(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn()
}

// Users returns member keys in insertion order.
func (b *Group) Users() []string { return b.list.Keys() }

// Contains reports whether user is a member.
func (b *Group) Contains(user string) bool { return b.list.Contains(user) }

// Len returns the number of members.
func (b *Group) Len() int { return b.list.Len() }

// Endpoint returns the member registered under user.
func (b *Group) Endpoint(user string) (*Endpoint, error) { return b.list.Get(user) }

// Unregister removes user, firing the registry's remove observers.
func (b *Group) Unregister(user string) error {
	_, err := b.list.Remove(user)
	return err
}

// Notify sends one command to a member.
func (b *Group) Notify(user string, code messaging.Code, args []any, kwargs messaging.Kwargs) error {
	e, err := b.list.Get(user)
	if err != nil {
		return err
	}
	if err := e.Notify(code, args, kwargs); err != nil {
		return fmt.Errorf("notify %s with %s: %w", user, code, err)
	}
	return nil
}

// Broadcast notifies, in insertion order, every member accepted by
// criterion (nil means AllowAll). Delivery failures do not stop the loop;
// they are returned joined.
func (b *Group) Broadcast(code messaging.Code, criterion Criterion, args []any, kwargs messaging.Kwargs) error {
	if criterion == nil {
		criterion = AllowAll
	}

	var errs []error
	for _, e := range b.list.Endpoints() {
		if !criterion(e, code, args, kwargs) {
			continue
		}
		if err := e.Notify(code, args, kwargs); err != nil {
			b.logger.Warn("Broadcast delivery failed",
				"broadcast", b.key, "user", e.key, "code", code.String(), "error", err)
			errs = append(errs, fmt.Errorf("notify %s with %s: %w", e.key, code, err))
		}
	}
	return errors.Join(errs...)
}
