package chat

import (
	"log/slog"

	"github.com/luciancaetano/cantrips/actions"
	"github.com/luciancaetano/cantrips/broadcast"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

type channelRequest struct {
	conn    *protocol.Conn
	user    *broadcast.Endpoint
	channel string
}

// Channels handles channel create, close, join and part. Channels are the
// slaves of the master.
type Channels struct {
	master *broadcast.Master
	policy Policy
	logger *slog.Logger

	create *actions.Guarded[channelRequest]
	close  *actions.Guarded[channelRequest]
	join   *actions.Guarded[channelRequest]
	part   *actions.Guarded[channelRequest]
}

// NewChannels creates the channels trait.
func NewChannels(master *broadcast.Master, policy Policy, logger *slog.Logger) *Channels {
	if logger == nil {
		logger = slog.Default()
	}

	ch := &Channels{
		master: master,
		policy: policy,
		logger: logger.With("trait", "channel"),
	}
	ch.create = actions.MustGuarded(ch.createAllowed, ch.createAccepted, ch.rejected(CodeCreate))
	ch.close = actions.MustGuarded(ch.closeAllowed, ch.closeAccepted, ch.rejected(CodeClose))
	ch.join = actions.MustGuarded(ch.joinAllowed, ch.joinAccepted, ch.rejected(CodeJoin))
	ch.part = actions.MustGuarded(ch.partAllowed, ch.partAccepted, ch.rejected(CodePart))
	return ch
}

// Specification implements messaging.Provider.
func (ch *Channels) Specification() messaging.Specification {
	return responseSpec(messaging.Specification{
		NamespaceChannel: {
			CodeCreate.Command: messaging.ClientToServer,
			CodeClose.Command:  messaging.ClientToServer,
			CodeJoin.Command:   messaging.ClientToServer,
			CodePart.Command:   messaging.ClientToServer,
			CodeJoined.Command: messaging.ServerToClient,
			CodeParted.Command: messaging.ServerToClient,
			CodeClosed.Command: messaging.ServerToClient,
			CodeList.Command:   messaging.ServerToClient,
		},
	})
}

// Routes implements Trait.
func (ch *Channels) Routes() map[messaging.Code]protocol.HandlerFunc {
	return map[messaging.Code]protocol.HandlerFunc{
		CodeCreate: loginRequired(ch.master, CodeCreate, ch.run(ch.create)),
		CodeClose:  loginRequired(ch.master, CodeClose, ch.run(ch.close)),
		CodeJoin:   loginRequired(ch.master, CodeJoin, ch.run(ch.join)),
		CodePart:   loginRequired(ch.master, CodePart, ch.run(ch.part)),
	}
}

// SendList sends the current channel keys to c.
func (ch *Channels) SendList(c *protocol.Conn, _ *broadcast.Endpoint) error {
	channels := ch.master.Slaves()
	list := make([]any, len(channels))
	for i, key := range channels {
		list[i] = key
	}
	return c.Send(CodeList.Namespace, CodeList.Command, nil, messaging.Kwargs{"channels": list})
}

func (ch *Channels) run(action *actions.Guarded[channelRequest]) userHandler {
	return func(c *protocol.Conn, user *broadcast.Endpoint, m messaging.Message) error {
		channel, err := nonEmptyKwarg(m, "channel")
		if err != nil {
			return err
		}
		_, err = action.Run(channelRequest{conn: c, user: user, channel: channel})
		return err
	}
}

func (ch *Channels) rejected(code messaging.Code) func(actions.Result, channelRequest) error {
	return func(res actions.Result, req channelRequest) error {
		return respond(req.conn, code, res, messaging.Kwargs{"channel": req.channel})
	}
}

func (ch *Channels) createAllowed(req channelRequest) actions.Result {
	if !ch.policy.canCreate(req.user.Key(), req.channel) {
		return actions.Deny(ReasonCannotCreate)
	}
	if _, ok := ch.master.Slave(req.channel); ok {
		return actions.Deny(ReasonChannelExists)
	}
	return actions.Allow(ReasonOK)
}

func (ch *Channels) createAccepted(res actions.Result, req channelRequest) error {
	if _, err := ch.master.SlaveRegister(req.channel); err != nil {
		return err
	}
	ch.logger.Info("Channel created", "channel", req.channel, "user", req.user.Key())
	return respond(req.conn, CodeCreate, res, messaging.Kwargs{"channel": req.channel})
}

func (ch *Channels) closeAllowed(req channelRequest) actions.Result {
	if !ch.policy.canClose(req.user.Key(), req.channel) {
		return actions.Deny(ReasonCannotClose)
	}
	if _, ok := ch.master.Slave(req.channel); !ok {
		return actions.Deny(ReasonUnexistentChannel)
	}
	return actions.Allow(ReasonOK)
}

// closeAccepted tells members the channel is closing, then destroys it,
// which force-parts each of them.
func (ch *Channels) closeAccepted(res actions.Result, req channelRequest) error {
	slave, ok := ch.master.Slave(req.channel)
	if !ok {
		return respond(req.conn, CodeClose, actions.Deny(ReasonUnexistentChannel), messaging.Kwargs{"channel": req.channel})
	}
	if err := respond(req.conn, CodeClose, res, messaging.Kwargs{"channel": req.channel}); err != nil {
		return err
	}

	kwargs := messaging.Kwargs{"channel": req.channel, "user": req.user.Key()}
	deliver(ch.logger, slave.Broadcast(CodeClosed, nil, nil, kwargs), CodeClosed.String())
	if err := ch.master.SlaveUnregister(req.channel); err != nil {
		return err
	}
	ch.logger.Info("Channel closed", "channel", req.channel, "user", req.user.Key())
	return nil
}

func (ch *Channels) joinAllowed(req channelRequest) actions.Result {
	slave, ok := ch.master.Slave(req.channel)
	if !ok {
		return actions.Deny(ReasonUnexistentChannel)
	}
	if slave.Contains(req.user.Key()) {
		return actions.Deny(ReasonAlreadyIn)
	}
	return actions.Allow(ReasonOK)
}

func (ch *Channels) joinAccepted(res actions.Result, req channelRequest) error {
	slave, _ := ch.master.Slave(req.channel)
	if err := slave.Join(req.user); err != nil {
		return err
	}
	if err := respond(req.conn, CodeJoin, res, messaging.Kwargs{"channel": req.channel, "users": usersOf(slave)}); err != nil {
		return err
	}

	kwargs := messaging.Kwargs{"channel": req.channel, "user": req.user.Key()}
	deliver(ch.logger, slave.Broadcast(CodeJoined, broadcast.Others(req.user.Key()), nil, kwargs), CodeJoined.String())
	return nil
}

func (ch *Channels) partAllowed(req channelRequest) actions.Result {
	slave, ok := ch.master.Slave(req.channel)
	if !ok {
		return actions.Deny(ReasonUnexistentChannel)
	}
	if !slave.Contains(req.user.Key()) {
		return actions.Deny(ReasonNotIn)
	}
	return actions.Allow(ReasonOK)
}

func (ch *Channels) partAccepted(res actions.Result, req channelRequest) error {
	slave, _ := ch.master.Slave(req.channel)
	if err := slave.Part(req.user.Key()); err != nil {
		return err
	}
	if err := respond(req.conn, CodePart, res, messaging.Kwargs{"channel": req.channel}); err != nil {
		return err
	}

	kwargs := messaging.Kwargs{"channel": req.channel, "user": req.user.Key()}
	deliver(ch.logger, slave.Broadcast(CodeParted, nil, nil, kwargs), CodeParted.String())
	return nil
}

func usersOf(g broadcast.Broadcastable) []any {
	users := g.Users()
	out := make([]any, len(users))
	for i, u := range users {
		out[i] = u
	}
	return out
}
