package chat

import (
	"log/slog"

	"github.com/luciancaetano/cantrips/actions"
	"github.com/luciancaetano/cantrips/broadcast"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

type whisperRequest struct {
	conn    *protocol.Conn
	user    *broadcast.Endpoint
	target  string
	message string
}

// Whisper lets a logged-in user send a private message to another one.
type Whisper struct {
	master  *broadcast.Master
	logger  *slog.Logger
	whisper *actions.Guarded[whisperRequest]
}

// NewWhisper creates the whisper trait.
func NewWhisper(master *broadcast.Master, logger *slog.Logger) *Whisper {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Whisper{master: master, logger: logger.With("trait", "whisper")}
	w.whisper = actions.MustGuarded(w.allowed, w.accepted, w.rejected)
	return w
}

// Specification implements messaging.Provider.
func (w *Whisper) Specification() messaging.Specification {
	return responseSpec(messaging.Specification{
		NamespaceWhisper: {
			CodeWhisper.Command:   messaging.ClientToServer,
			CodeWhispered.Command: messaging.ServerToClient,
		},
	})
}

// Routes implements Trait.
func (w *Whisper) Routes() map[messaging.Code]protocol.HandlerFunc {
	return map[messaging.Code]protocol.HandlerFunc{
		CodeWhisper: loginRequired(w.master, CodeWhisper, w.handle),
	}
}

func (w *Whisper) handle(c *protocol.Conn, user *broadcast.Endpoint, m messaging.Message) error {
	target, err := stringKwarg(m, "target", true)
	if err != nil {
		return err
	}
	message, err := stringKwarg(m, "message", true)
	if err != nil {
		return err
	}
	_, err = w.whisper.Run(whisperRequest{conn: c, user: user, target: target, message: message})
	return err
}

func (w *Whisper) allowed(req whisperRequest) actions.Result {
	if !w.master.Contains(req.target) {
		return actions.Deny(ReasonTargetNotIn)
	}
	if req.target == req.user.Key() {
		return actions.Deny(ReasonTargetItsYou)
	}
	return actions.Allow(ReasonOK)
}

func (w *Whisper) accepted(res actions.Result, req whisperRequest) error {
	if err := respond(req.conn, CodeWhisper, res, messaging.Kwargs{"target": req.target, "message": req.message}); err != nil {
		return err
	}
	kwargs := messaging.Kwargs{"sender": req.user.Key(), "message": req.message}
	deliver(w.logger, w.master.Notify(req.target, CodeWhispered, nil, kwargs), CodeWhispered.String())
	return nil
}

func (w *Whisper) rejected(res actions.Result, req whisperRequest) error {
	return respond(req.conn, CodeWhisper, res, messaging.Kwargs{"target": req.target, "message": req.message})
}
