// Package actions provides the access-controlled action: a gate predicate
// plus an accept and a reject branch. Every stateful protocol command is one
// instance of it.
//
//	login := actions.MustGuarded(
//	    func(req loginRequest) actions.Result { ... },        // is allowed?
//	    func(res actions.Result, req loginRequest) error { ... }, // accepted
//	    func(res actions.Result, req loginRequest) error { ... }, // rejected
//	)
//	result, err := login.Run(req)
package actions

import "errors"

// ErrIncomplete is returned when an action is built without one of its functions.
var ErrIncomplete = errors.New("access-controlled action requires all of is-allowed, accepts, on-allowed and on-denied")

// Action runs IsAllowed on the request, hands its value to Accepts, and then
// runs OnAllowed or OnDenied with that same value.
type Action[C, R any] struct {
	isAllowed func(C) R
	accepts   func(R) bool
	onAllowed func(R, C) error
	onDenied  func(R, C) error
}

// New builds an action from its four functions.
func New[C, R any](isAllowed func(C) R, accepts func(R) bool, onAllowed, onDenied func(R, C) error) (*Action[C, R], error) {
	if isAllowed == nil || accepts == nil || onAllowed == nil || onDenied == nil {
		return nil, ErrIncomplete
	}
	return &Action[C, R]{
		isAllowed: isAllowed,
		accepts:   accepts,
		onAllowed: onAllowed,
		onDenied:  onDenied,
	}, nil
}

// Must is like New but panics on an incomplete action. Intended for actions
// declared at construction time.
func Must[C, R any](isAllowed func(C) R, accepts func(R) bool, onAllowed, onDenied func(R, C) error) *Action[C, R] {
	a, err := New(isAllowed, accepts, onAllowed, onDenied)
	if err != nil {
		panic(err)
	}
	return a
}

// Run executes the action. It returns the gate's value and the error of the
// branch that ran.
func (a *Action[C, R]) Run(req C) (R, error) {
	result := a.isAllowed(req)
	if a.accepts(result) {
		return result, a.onAllowed(result, req)
	}
	return result, a.onDenied(result, req)
}

// Guarded is an action gated by a Result.
type Guarded[C any] = Action[C, Result]

// NewGuarded builds an action whose Accepts predicate is Accepted.
func NewGuarded[C any](isAllowed func(C) Result, onAllowed, onDenied func(Result, C) error) (*Guarded[C], error) {
	return New(isAllowed, Accepted, onAllowed, onDenied)
}

// MustGuarded is like NewGuarded but panics on an incomplete action.
func MustGuarded[C any](isAllowed func(C) Result, onAllowed, onDenied func(Result, C) error) *Guarded[C] {
	return Must(isAllowed, Accepted, onAllowed, onDenied)
}
