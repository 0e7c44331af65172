package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/luciancaetano/cantrips/broadcast"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

// SessionObserver is told when users log in and out.
type SessionObserver interface {
	SessionStarted()
	SessionEnded()
}

// Config configures a chat Server.
type Config struct {
	// Key names the master broadcast. Defaults to "server".
	Key string
	// Validator checks logins. Nil rejects every login.
	Validator Validator
	// Policy decides who may create and close channels.
	Policy Policy
	// Channels are created at startup.
	Channels []string
	// Traits are served next to the built-in ones.
	Traits []Trait
	// Extensions add commands without routes, e.g. for a custom handler
	// set up through Router.
	Extensions []messaging.Provider
	// Sessions observes logins and logouts.
	Sessions SessionObserver
	Logger   *slog.Logger
}

// Server composes the chat traits over one master broadcast into a single
// namespace set and router.
type Server struct {
	master     *broadcast.Master
	auth       *Auth
	channels   *Channels
	namespaces *messaging.NamespaceSet
	router     *protocol.Router
}

// NewServer builds the server, its channels and its protocol tables.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chat")
	if cfg.Key == "" {
		cfg.Key = "server"
	}

	master := broadcast.NewMaster(cfg.Key, broadcast.WithLogger(logger))
	if cfg.Sessions != nil {
		master.Registry().OnInsert(func(*broadcast.Endpoint) { cfg.Sessions.SessionStarted() })
		master.Registry().OnRemove(func(*broadcast.Endpoint, bool) { cfg.Sessions.SessionEnded() })
	}
	for _, key := range cfg.Channels {
		if _, err := master.SlaveRegister(key); err != nil {
			return nil, fmt.Errorf("channel %q: %w", key, err)
		}
	}

	s := &Server{
		master:   master,
		auth:     NewAuth(master, cfg.Validator, logger),
		channels: NewChannels(master, cfg.Policy, logger),
		router:   protocol.NewRouter(),
	}
	s.auth.AfterLogin = s.channels.SendList

	traits := []Trait{s.auth, s.channels, NewSay(master, logger), NewWhisper(master, logger)}
	traits = append(traits, cfg.Traits...)

	providers := []messaging.Provider{master}
	for _, t := range traits {
		if t == nil {
			return nil, errors.New("nil chat trait")
		}
		providers = append(providers, t)
	}
	providers = append(providers, cfg.Extensions...)

	namespaces, err := messaging.NewNamespaceSet(messaging.Specifications(providers...))
	if err != nil {
		return nil, fmt.Errorf("build namespaces: %w", err)
	}
	s.namespaces = namespaces

	for _, t := range traits {
		routes := t.Routes()
		for _, code := range slices.SortedFunc(maps.Keys(routes), compareCodes) {
			if _, err := namespaces.Command(code); err != nil {
				return nil, fmt.Errorf("route %s: %w", code, err)
			}
			s.router.Handle(code, s.serialized(routes[code]))
		}
	}
	s.router.SetGoodbye(s.goodbye)
	s.router.SetInvalid(s.invalid)

	return s, nil
}

func compareCodes(a, b messaging.Code) int {
	return strings.Compare(a.String(), b.String())
}

// Master returns the master broadcast.
func (s *Server) Master() *broadcast.Master { return s.master }

// Auth returns the auth trait.
func (s *Server) Auth() *Auth { return s.auth }

// Namespaces returns the namespace set of every chat command.
func (s *Server) Namespaces() *messaging.NamespaceSet { return s.namespaces }

// Specification returns every command the server declares.
func (s *Server) Specification() messaging.Specification { return s.namespaces.Specification() }

// Router returns the router serving the chat commands.
func (s *Server) Router() *protocol.Router { return s.router }

// Protocol builds a protocol speaking the chat commands.
func (s *Server) Protocol(opts ...protocol.Option) (*protocol.Protocol, error) {
	return protocol.New(s.namespaces, s.router, opts...)
}

// serialized runs fn holding the master's lock, so a command, its cascades
// and its notifications never interleave with another connection's.
func (s *Server) serialized(fn protocol.HandlerFunc) protocol.HandlerFunc {
	return func(c *protocol.Conn, m messaging.Message) (bool, error) {
		var keepOpen bool
		err := s.master.Do(func() error {
			var err error
			keepOpen, err = fn(c, m)
			return err
		})
		return keepOpen, err
	}
}

// goodbye logs the connection's user out, cascading into its channels.
func (s *Server) goodbye(c *protocol.Conn) error {
	return s.master.Do(func() error {
		user, ok := s.master.AuthGet(c)
		if !ok {
			s.master.Unbind(c)
			return nil
		}
		c.Logger().Info("User disconnected", "user", user.Key())
		return s.master.Unregister(user.Key())
	})
}

// invalid reports format and protocol errors through messaging.error and
// keeps the connection. Anything else closes it.
func (s *Server) invalid(c *protocol.Conn, err error) bool {
	code, reason := protocol.CloseCode(err)
	if !messaging.IsInvalidFormat(err) && !messaging.IsProtocolViolation(err) && !errors.Is(err, protocol.ErrUnhandled) {
		c.Logger().Error("Cannot fulfill request", "error", err)
		return false
	}
	if sendErr := c.Send(CodeError.Namespace, CodeError.Command, nil, messaging.Kwargs{"code": code, "reason": reason}); sendErr != nil {
		return false
	}
	return true
}
