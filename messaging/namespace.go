package messaging

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/internal/protocol"
)

// Reserved namespace and command, registered by every NamespaceSet.
const (
	NamespaceMessaging = cantrips.NamespaceMessaging
	CommandError       = cantrips.CommandError
)

// Command is a direction-tagged message kind inside a namespace.
type Command struct {
	namespace string
	code      string
	direction Direction
}

// Code returns the command code (without namespace).
func (c *Command) Code() string { return c.code }

// Namespace returns the code of the owning namespace.
func (c *Command) Namespace() string { return c.namespace }

// Direction returns the declared direction.
func (c *Command) Direction() Direction { return c.direction }

// Build creates a message of this command.
func (c *Command) Build(args []any, kwargs Kwargs) Message {
	return Message{
		code:      Code{Namespace: c.namespace, Command: c.code},
		direction: c.direction,
		args:      slices.Clone(args),
		kwargs:    maps.Clone(kwargs),
	}
}

// Namespace is a named group of commands.
type Namespace struct {
	code string

	mu       sync.RWMutex
	commands map[string]*Command
}

func newNamespace(code string) *Namespace {
	return &Namespace{
		code:     code,
		commands: make(map[string]*Command),
	}
}

// Code returns the namespace code.
func (n *Namespace) Code() string { return n.code }

// Register declares a command. Registering an existing code fails with
// ErrDuplicateCommand unless allowExisting is set, in which case the existing
// command is returned untouched (its direction is not overwritten).
func (n *Namespace) Register(code string, direction Direction, allowExisting bool) (*Command, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty command code in namespace %q", ErrInvalidFormat, n.code)
	}
	if direction&^Both != 0 || direction == 0 {
		return nil, fmt.Errorf("invalid direction %d for command %s.%s", uint8(direction), n.code, code)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.commands[code]; ok {
		if allowExisting {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateCommand, n.code, code)
	}

	cmd := &Command{namespace: n.code, code: code, direction: direction}
	n.commands[code] = cmd
	return cmd, nil
}

// Find returns the command registered under code.
func (n *Namespace) Find(code string) (*Command, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	cmd, ok := n.commands[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownCommand, n.code, code)
	}
	return cmd, nil
}

// Commands returns the registered command codes, sorted.
func (n *Namespace) Commands() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Sorted(maps.Keys(n.commands))
}

// NamespaceSet owns every namespace known to a protocol. It is built once per
// protocol and shared by all of its connections.
type NamespaceSet struct {
	mu         sync.RWMutex
	namespaces map[string]*Namespace
}

// NewNamespaceSet creates a set holding the reserved messaging.error command
// plus every namespace and command of spec.
func NewNamespaceSet(spec Specification) (*NamespaceSet, error) {
	s := &NamespaceSet{namespaces: make(map[string]*Namespace)}

	ns, err := s.Register(NamespaceMessaging, false)
	if err != nil {
		return nil, err
	}
	if _, err := ns.Register(CommandError, ServerToClient, false); err != nil {
		return nil, err
	}

	for _, nsCode := range slices.Sorted(maps.Keys(spec)) {
		ns, err := s.Register(nsCode, true)
		if err != nil {
			return nil, err
		}
		commands := spec[nsCode]
		for _, cmdCode := range slices.Sorted(maps.Keys(commands)) {
			if _, err := ns.Register(cmdCode, commands[cmdCode], true); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Register declares a namespace. Registering an existing code fails with
// ErrDuplicateNamespace unless allowExisting is set, in which case the
// existing namespace is returned.
func (s *NamespaceSet) Register(code string, allowExisting bool) (*Namespace, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty namespace code", ErrInvalidFormat)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.namespaces[code]; ok {
		if allowExisting {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNamespace, code)
	}

	ns := newNamespace(code)
	s.namespaces[code] = ns
	return ns, nil
}

// Find returns the namespace registered under code.
func (s *NamespaceSet) Find(code string) (*Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, code)
	}
	return ns, nil
}

// Namespaces returns the registered namespace codes, sorted.
func (s *NamespaceSet) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.namespaces))
}

// Command resolves a namespace/command pair.
func (s *NamespaceSet) Command(code Code) (*Command, error) {
	ns, err := s.Find(code.Namespace)
	if err != nil {
		return nil, err
	}
	return ns.Find(code.Command)
}

// Build resolves code and builds a message from it.
func (s *NamespaceSet) Build(code Code, args []any, kwargs Kwargs) (Message, error) {
	cmd, err := s.Command(code)
	if err != nil {
		return Message{}, err
	}
	return cmd.Build(args, kwargs), nil
}

// Specification returns the commands of the set in specification form.
func (s *NamespaceSet) Specification() Specification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spec := make(Specification, len(s.namespaces))
	for code, ns := range s.namespaces {
		ns.mu.RLock()
		commands := make(map[string]Direction, len(ns.commands))
		for cmdCode, cmd := range ns.commands {
			commands[cmdCode] = cmd.direction
		}
		ns.mu.RUnlock()
		spec[code] = commands
	}
	return spec
}

// Unserialize validates a decoded envelope and builds its message.
//
// obj must be exactly {code: string, args: list, kwargs: map}, given either as
// a decoded JSON object (map[string]any) or as an Envelope. When expectServer
// is true the message was received from a client, and commands that may not
// travel to the server fail with ErrDirectionViolation.
func (s *NamespaceSet) Unserialize(obj any, expectServer bool) (Message, error) {
	env, err := envelopeOf(obj)
	if err != nil {
		return Message{}, err
	}

	code, err := ParseCode(env.Code)
	if err != nil {
		return Message{}, err
	}

	cmd, err := s.Command(code)
	if err != nil {
		return Message{}, err
	}

	if expectServer && !cmd.direction.ToServer() {
		return Message{}, fmt.Errorf("%w: %s cannot be unserialized since it's not server-wise", ErrDirectionViolation, env.Code)
	}
	return cmd.Build(env.Args, env.Kwargs), nil
}

// Decode parses a raw frame and unserializes it.
func (s *NamespaceSet) Decode(frame []byte, expectServer bool) (Message, error) {
	obj, err := protocol.Decode(frame)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return s.Unserialize(obj, expectServer)
}

// Encode serializes a message bound to a client into a raw frame.
func (s *NamespaceSet) Encode(m Message) ([]byte, error) {
	env, err := m.Serialize(true)
	if err != nil {
		return nil, err
	}
	return protocol.Encode(env)
}

func envelopeOf(obj any) (Envelope, error) {
	switch v := obj.(type) {
	case Envelope:
		return checkEnvelope(v)
	case *Envelope:
		if v == nil {
			return Envelope{}, fmt.Errorf("%w: nil envelope", ErrInvalidFormat)
		}
		return checkEnvelope(*v)
	case map[string]any:
		if len(v) != 3 {
			return Envelope{}, fmt.Errorf("%w: expected format message is {code:string, args:list, kwargs:dict}", ErrInvalidFormat)
		}
		code, okCode := v["code"].(string)
		args, okArgs := v["args"].([]any)
		kwargs, okKwargs := v["kwargs"].(map[string]any)
		if !okCode || !okArgs || !okKwargs {
			return Envelope{}, fmt.Errorf("%w: expected format message is {code:string, args:list, kwargs:dict}", ErrInvalidFormat)
		}
		return Envelope{Code: code, Args: args, Kwargs: kwargs}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: expected an object, got %T", ErrInvalidFormat, obj)
	}
}

func checkEnvelope(env Envelope) (Envelope, error) {
	if env.Args == nil || env.Kwargs == nil {
		return Envelope{}, fmt.Errorf("%w: envelope args and kwargs must be present", ErrInvalidFormat)
	}
	return env, nil
}
