package chat

import (
	"fmt"
	"log/slog"

	"github.com/luciancaetano/cantrips/actions"
	"github.com/luciancaetano/cantrips/broadcast"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

// Namespaces of the chat protocol.
const (
	NamespaceAuth    = "auth"
	NamespaceChannel = "channel"
	NamespaceSay     = "say"
	NamespaceWhisper = "whisper"
	NamespaceNotify  = "notify"
)

// Commands received from clients.
var (
	CodeLogin   = messaging.Code{Namespace: NamespaceAuth, Command: "login"}
	CodeLogout  = messaging.Code{Namespace: NamespaceAuth, Command: "logout"}
	CodeCreate  = messaging.Code{Namespace: NamespaceChannel, Command: "create"}
	CodeClose   = messaging.Code{Namespace: NamespaceChannel, Command: "close"}
	CodeJoin    = messaging.Code{Namespace: NamespaceChannel, Command: "join"}
	CodePart    = messaging.Code{Namespace: NamespaceChannel, Command: "part"}
	CodeSay     = messaging.Code{Namespace: NamespaceSay, Command: "say"}
	CodeWhisper = messaging.Code{Namespace: NamespaceWhisper, Command: "whisper"}
)

// Commands sent to clients.
var (
	CodeResponse  = messaging.Code{Namespace: NamespaceNotify, Command: "response"}
	CodeLoggedOut = broadcast.CodeLoggedOut
	CodeParted    = broadcast.CodeParted
	CodeJoined    = messaging.Code{Namespace: NamespaceChannel, Command: "joined"}
	CodeClosed    = messaging.Code{Namespace: NamespaceChannel, Command: "closed"}
	CodeList      = messaging.Code{Namespace: NamespaceChannel, Command: "list"}
	CodeSaid      = messaging.Code{Namespace: NamespaceSay, Command: "said"}
	CodeWhispered = messaging.Code{Namespace: NamespaceWhisper, Command: "whispered"}
	CodeError     = messaging.Code{Namespace: messaging.NamespaceMessaging, Command: messaging.CommandError}
)

// Result reasons.
const (
	ReasonOK                   = "ok"
	ReasonLoginRequired        = "login-required"
	ReasonAlreadyActiveSession = "already-active-session"
	ReasonInvalidLogin         = "invalid-login"
	ReasonAlreadyLoggedIn      = "already-logged-in"
	ReasonLoggedIn             = "logged-in"
	ReasonNoActiveSession      = "no-active-session"
	ReasonLoggedOut            = "logged-out"
	ReasonCannotCreate         = "cannot-create-channel"
	ReasonCannotClose          = "cannot-close-channel"
	ReasonChannelExists        = "channel-exists"
	ReasonUnexistentChannel    = "unexistent-channel"
	ReasonAlreadyIn            = "already-in"
	ReasonNotIn                = "not-in"
	ReasonTargetNotIn          = "target-not-in"
	ReasonTargetItsYou         = "target-its-you"
)

// Trait is a group of chat commands: the commands it declares and the
// routes that handle them.
type Trait interface {
	messaging.Provider
	Routes() map[messaging.Code]protocol.HandlerFunc
}

func responseSpec(spec messaging.Specification) messaging.Specification {
	spec[NamespaceNotify] = map[string]messaging.Direction{CodeResponse.Command: messaging.ServerToClient}
	return spec
}

// respond answers the command code with notify.response.
func respond(c *protocol.Conn, code messaging.Code, result actions.Result, extra messaging.Kwargs) error {
	kwargs := messaging.Kwargs{"command": code.String(), "result": result.Map()}
	for k, v := range extra {
		kwargs[k] = v
	}
	return c.Send(CodeResponse.Namespace, CodeResponse.Command, nil, kwargs)
}

// userHandler handles a command sent by a logged-in user.
type userHandler func(c *protocol.Conn, user *broadcast.Endpoint, m messaging.Message) error

// loginRequired denies code to anonymous connections with login-required.
func loginRequired(master *broadcast.Master, code messaging.Code, fn userHandler) protocol.HandlerFunc {
	return func(c *protocol.Conn, m messaging.Message) (bool, error) {
		user, ok := master.AuthGet(c)
		if !ok {
			return true, respond(c, code, actions.Deny(ReasonLoginRequired), nil)
		}
		return true, fn(c, user, m)
	}
}

// stringKwarg reads a string keyword argument. Absent required arguments and
// arguments of another type are format errors.
func stringKwarg(m messaging.Message, key string, required bool) (string, error) {
	v, ok := m.Kwarg(key)
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: %s requires kwarg %q", messaging.ErrInvalidFormat, m.Code(), key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s kwarg %q must be a string", messaging.ErrInvalidFormat, m.Code(), key)
	}
	return s, nil
}

func nonEmptyKwarg(m messaging.Message, key string) (string, error) {
	s, err := stringKwarg(m, key, true)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s kwarg %q must not be empty", messaging.ErrInvalidFormat, m.Code(), key)
	}
	return s, nil
}

// deliver logs failed deliveries to other peers; they never fail the sender.
func deliver(logger *slog.Logger, err error, what string) {
	if err != nil {
		logger.Warn("Delivery incomplete", "what", what, "error", err)
	}
}
