package messaging

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kwargs holds the keyword arguments of a message.
type Kwargs map[string]any

// Code identifies a command inside a namespace.
type Code struct {
	Namespace string
	Command   string
}

// String returns the dotted wire form "<namespace>.<command>".
func (c Code) String() string {
	return c.Namespace + "." + c.Command
}

// ParseCode splits a dotted code on its last dot, so "a.b.c" is command "c"
// of namespace "a.b". Only a missing dot is a format error: ".cmd" and "ns."
// parse with an empty part, which no namespace set can resolve.
func ParseCode(s string) (Code, error) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return Code{}, fmt.Errorf("%w: code %q must be in format namespace.command", ErrInvalidFormat, s)
	}
	return Code{Namespace: s[:i], Command: s[i+1:]}, nil
}

// Envelope is the wire representation of a message.
type Envelope struct {
	Code   string         `json:"code"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Message is an immutable command instance: a code, positional arguments
// and keyword arguments. Messages are built by a Command.
type Message struct {
	code      Code
	direction Direction
	args      []any
	kwargs    Kwargs
}

// Code returns the namespace/command pair of the message.
func (m Message) Code() Code { return m.code }

// Namespace returns the namespace code.
func (m Message) Namespace() string { return m.code.Namespace }

// Command returns the command code.
func (m Message) Command() string { return m.code.Command }

// Direction returns the direction declared by the message's command.
func (m Message) Direction() Direction { return m.direction }

// Args returns a copy of the positional arguments.
func (m Message) Args() []any { return slices.Clone(m.args) }

// Kwargs returns a copy of the keyword arguments.
func (m Message) Kwargs() Kwargs { return maps.Clone(m.kwargs) }

// Arg returns the i-th positional argument, or nil when absent.
func (m Message) Arg(i int) any {
	if i < 0 || i >= len(m.args) {
		return nil
	}
	return m.args[i]
}

// Kwarg returns a keyword argument and whether it was present.
func (m Message) Kwarg(key string) (any, bool) {
	v, ok := m.kwargs[key]
	return v, ok
}

// Text returns the keyword argument key when it holds a string.
func (m Message) Text(key string) (string, bool) {
	v, ok := m.kwargs[key].(string)
	return v, ok
}

// Serialize returns the wire envelope of the message. When expectClient is
// true the message is about to be sent to a client, and commands that may not
// travel to clients fail with ErrDirectionViolation.
func (m Message) Serialize(expectClient bool) (Envelope, error) {
	env := Envelope{
		Code:   m.code.String(),
		Args:   slices.Clone(m.args),
		Kwargs: maps.Clone(m.kwargs),
	}
	if env.Args == nil {
		env.Args = []any{}
	}
	if env.Kwargs == nil {
		env.Kwargs = map[string]any{}
	}

	if expectClient && !m.direction.ToClient() {
		return env, fmt.Errorf("%w: %s cannot be serialized since it's not client-wise", ErrDirectionViolation, env.Code)
	}
	return env, nil
}
