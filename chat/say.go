package chat

import (
	"log/slog"

	"github.com/luciancaetano/cantrips/actions"
	"github.com/luciancaetano/cantrips/broadcast"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

type sayRequest struct {
	conn    *protocol.Conn
	user    *broadcast.Endpoint
	channel string // empty targets the whole master
	message string
}

// Say lets a user publish a message to a channel, or to every logged-in
// user when no channel is given. Only members may speak.
type Say struct {
	master *broadcast.Master
	logger *slog.Logger
	say    *actions.Guarded[sayRequest]
}

// NewSay creates the say trait.
func NewSay(master *broadcast.Master, logger *slog.Logger) *Say {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Say{master: master, logger: logger.With("trait", "say")}
	s.say = actions.MustGuarded(s.allowed, s.accepted, s.rejected)
	return s
}

// Specification implements messaging.Provider.
func (s *Say) Specification() messaging.Specification {
	return responseSpec(messaging.Specification{
		NamespaceSay: {
			CodeSay.Command:  messaging.ClientToServer,
			CodeSaid.Command: messaging.ServerToClient,
		},
	})
}

// Routes implements Trait.
func (s *Say) Routes() map[messaging.Code]protocol.HandlerFunc {
	return map[messaging.Code]protocol.HandlerFunc{
		CodeSay: loginRequired(s.master, CodeSay, s.handle),
	}
}

func (s *Say) handle(c *protocol.Conn, user *broadcast.Endpoint, m messaging.Message) error {
	message, err := stringKwarg(m, "message", true)
	if err != nil {
		return err
	}
	channel, err := stringKwarg(m, "channel", false)
	if err != nil {
		return err
	}
	_, err = s.say.Run(sayRequest{conn: c, user: user, channel: channel, message: message})
	return err
}

func (s *Say) target(channel string) (broadcast.Broadcastable, bool) {
	if channel == "" {
		return s.master, true
	}
	slave, ok := s.master.Slave(channel)
	if !ok {
		return nil, false
	}
	return slave, true
}

func (s *Say) allowed(req sayRequest) actions.Result {
	target, ok := s.target(req.channel)
	if !ok {
		return actions.Deny(ReasonUnexistentChannel)
	}
	if !target.Contains(req.user.Key()) {
		return actions.Deny(ReasonNotIn)
	}
	return actions.Allow(ReasonOK)
}

func (s *Say) accepted(res actions.Result, req sayRequest) error {
	if err := respond(req.conn, CodeSay, res, s.echo(req)); err != nil {
		return err
	}

	target, _ := s.target(req.channel)
	kwargs := messaging.Kwargs{"user": req.user.Key(), "message": req.message}
	if req.channel != "" {
		kwargs["channel"] = req.channel
	}
	deliver(s.logger, target.Broadcast(CodeSaid, broadcast.Others(req.user.Key()), nil, kwargs), CodeSaid.String())
	return nil
}

func (s *Say) rejected(res actions.Result, req sayRequest) error {
	return respond(req.conn, CodeSay, res, s.echo(req))
}

func (s *Say) echo(req sayRequest) messaging.Kwargs {
	kwargs := messaging.Kwargs{"message": req.message}
	if req.channel != "" {
		kwargs["channel"] = req.channel
	}
	return kwargs
}
