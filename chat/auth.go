package chat

import (
	"log/slog"

	"github.com/luciancaetano/cantrips/actions"
	"github.com/luciancaetano/cantrips/broadcast"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

type loginRequest struct {
	conn     *protocol.Conn
	username string
	password string
	key      string // set by the gate
}

type logoutRequest struct {
	conn *protocol.Conn
}

// Auth handles auth.login and auth.logout on a master.
type Auth struct {
	master    *broadcast.Master
	validator Validator
	logger    *slog.Logger

	// AfterLogin, when set, runs right after a successful login response.
	AfterLogin func(c *protocol.Conn, user *broadcast.Endpoint) error

	login  *actions.Guarded[*loginRequest]
	logout *actions.Guarded[*logoutRequest]
}

// NewAuth creates the auth trait. A nil validator rejects every login.
func NewAuth(master *broadcast.Master, validator Validator, logger *slog.Logger) *Auth {
	if validator == nil {
		validator = ValidatorFunc(func(string, string) (string, bool) { return "", false })
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Auth{
		master:    master,
		validator: validator,
		logger:    logger.With("trait", "auth"),
	}
	a.login = actions.MustGuarded(a.loginAllowed, a.loginAccepted, a.loginRejected)
	a.logout = actions.MustGuarded(a.logoutAllowed, a.logoutAccepted, a.logoutRejected)
	return a
}

// Specification implements messaging.Provider.
func (a *Auth) Specification() messaging.Specification {
	return responseSpec(messaging.Specification{
		NamespaceAuth: {
			CodeLogin.Command:     messaging.ClientToServer,
			CodeLogout.Command:    messaging.ClientToServer,
			CodeLoggedOut.Command: messaging.ServerToClient,
		},
	})
}

// Routes implements Trait.
func (a *Auth) Routes() map[messaging.Code]protocol.HandlerFunc {
	return map[messaging.Code]protocol.HandlerFunc{
		CodeLogin:  a.handleLogin,
		CodeLogout: a.handleLogout,
	}
}

func (a *Auth) handleLogin(c *protocol.Conn, m messaging.Message) (bool, error) {
	username, err := stringKwarg(m, "username", true)
	if err != nil {
		return false, err
	}
	password, err := stringKwarg(m, "password", false)
	if err != nil {
		return false, err
	}

	_, err = a.login.Run(&loginRequest{conn: c, username: username, password: password})
	return true, err
}

func (a *Auth) handleLogout(c *protocol.Conn, _ messaging.Message) (bool, error) {
	_, err := a.logout.Run(&logoutRequest{conn: c})
	return true, err
}

func (a *Auth) loginAllowed(req *loginRequest) actions.Result {
	if a.master.AuthCheck(req.conn, true) {
		return actions.Deny(ReasonAlreadyActiveSession)
	}
	key, ok := a.validator.Validate(req.username, req.password)
	if !ok || key == "" {
		return actions.Deny(ReasonInvalidLogin)
	}
	if a.master.Contains(key) {
		return actions.Deny(ReasonAlreadyLoggedIn)
	}
	req.key = key
	return actions.Allow(ReasonLoggedIn)
}

func (a *Auth) loginAccepted(res actions.Result, req *loginRequest) error {
	user, err := a.master.Register(req.key, req.conn)
	if err != nil {
		return err
	}
	a.logger.Info("User logged in", "user", user.Key(), "conn_id", req.conn.ID())

	if err := respond(req.conn, CodeLogin, res, messaging.Kwargs{"user": user.Key()}); err != nil {
		return err
	}
	if a.AfterLogin != nil {
		return a.AfterLogin(req.conn, user)
	}
	return nil
}

func (a *Auth) loginRejected(res actions.Result, req *loginRequest) error {
	a.logger.Debug("Login rejected", "reason", res.Reason, "conn_id", req.conn.ID())
	return respond(req.conn, CodeLogin, res, nil)
}

func (a *Auth) logoutAllowed(req *logoutRequest) actions.Result {
	if a.master.AuthCheck(req.conn, true) {
		return actions.Allow(ReasonLoggedOut)
	}
	return actions.Deny(ReasonNoActiveSession)
}

func (a *Auth) logoutAccepted(res actions.Result, req *logoutRequest) error {
	user, ok := a.master.AuthGet(req.conn)
	if !ok {
		return respond(req.conn, CodeLogout, actions.Deny(ReasonNoActiveSession), nil)
	}
	if err := a.master.Unregister(user.Key()); err != nil {
		return err
	}
	a.logger.Info("User logged out", "user", user.Key(), "conn_id", req.conn.ID())
	return respond(req.conn, CodeLogout, res, nil)
}

// logoutRejected also drops a stale session binding.
func (a *Auth) logoutRejected(res actions.Result, req *logoutRequest) error {
	a.master.Unbind(req.conn)
	return respond(req.conn, CodeLogout, res, nil)
}

// ForceLogout logs user out and tells its connection why. It reports whether
// user was logged in. It takes the master's lock, so call it from outside
// route handlers.
func (a *Auth) ForceLogout(user, reason string) bool {
	var done bool
	_ = a.master.Do(func() error {
		done = a.master.ForceLogout(user, reason)
		return nil
	})
	if done {
		a.logger.Info("User forcibly logged out", "user", user, "reason", reason)
	}
	return done
}
