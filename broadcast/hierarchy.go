package broadcast

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luciancaetano/cantrips/messaging"
)

var (
	// ErrActiveSession is returned when a connection already owns an endpoint.
	ErrActiveSession = errors.New("connection already has an active session")
	// ErrDuplicateSlave is returned when a slave key is already registered.
	ErrDuplicateSlave = errors.New("slave already registered")
	// ErrUnknownSlave is returned when a slave key is not registered.
	ErrUnknownSlave = errors.New("slave not registered")
)

// Reasons carried by forced departures.
const (
	ReasonUserUnregister  = "user-unregister"
	ReasonSlaveUnregister = "slave-unregister"
	ReasonForcedLogout    = "forced-logout"
)

// Commands the hierarchy sends on its own.
var (
	CodeLoggedOut = messaging.Code{Namespace: "auth", Command: "logged-out"}
	CodeParted    = messaging.Code{Namespace: "channel", Command: "parted"}
)

// Broadcastable is implemented by every group of endpoints.
type Broadcastable interface {
	Key() string
	Users() []string
	Contains(user string) bool
	Notify(user string, code messaging.Code, args []any, kwargs messaging.Kwargs) error
	Broadcast(code messaging.Code, criterion Criterion, args []any, kwargs messaging.Kwargs) error
}

// Authenticatable answers whether a connection is logged in.
type Authenticatable interface {
	AuthCheck(conn Conn, loggedIn bool) bool
	AuthGet(conn Conn) (*Endpoint, bool)
}

// Joinable is implemented by groups that existing users may join and leave.
type Joinable interface {
	Join(e *Endpoint) error
	Part(user string) error
}

var (
	_ Broadcastable   = (*Master)(nil)
	_ Broadcastable   = (*Slave)(nil)
	_ Authenticatable = (*Master)(nil)
	_ Authenticatable = (*Slave)(nil)
	_ Joinable        = (*Slave)(nil)
)

// Master owns user sessions: it creates endpoints on login, binds them to
// their connections, and spawns slaves whose members are always a subset of
// its own.
type Master struct {
	*Group

	sessions map[string]*Endpoint // connection id -> endpoint
	slaves   map[string]*Slave
	order    []string
}

// NewMaster creates an empty master.
func NewMaster(key string, opts ...Option) *Master {
	o := buildOptions(opts)
	m := &Master{
		Group:    newGroup(key, &sync.Mutex{}, o.logger.With("component", "broadcast", "master", key)),
		sessions: make(map[string]*Endpoint),
		slaves:   make(map[string]*Slave),
	}
	m.list.OnRemove(m.userRemoved)
	return m
}

// Specification declares the commands the hierarchy sends by itself.
func (m *Master) Specification() messaging.Specification {
	return messaging.Specification{
		CodeLoggedOut.Namespace: {CodeLoggedOut.Command: messaging.ServerToClient},
		CodeParted.Namespace:    {CodeParted.Command: messaging.ServerToClient},
	}
}

// Register creates the endpoint of user and binds it to conn.
func (m *Master) Register(user string, conn Conn) (*Endpoint, error) {
	if conn == nil {
		return nil, fmt.Errorf("endpoint %q needs a connection", user)
	}
	if _, ok := m.AuthGet(conn); ok {
		return nil, fmt.Errorf("%w: %s", ErrActiveSession, conn.ID())
	}

	e, err := m.list.Create(user, conn)
	if err != nil {
		return nil, err
	}
	m.sessions[conn.ID()] = e
	m.logger.Debug("User registered", "user", user, "conn_id", conn.ID())
	return e, nil
}

// userRemoved keeps every slave a subset of the master and drops the
// session binding.
func (m *Master) userRemoved(e *Endpoint, _ bool) {
	for _, key := range m.order {
		m.slaves[key].forcePart(e.key, ReasonUserUnregister)
	}
	if bound, ok := m.sessions[e.conn.ID()]; ok && bound == e {
		delete(m.sessions, e.conn.ID())
	}
	m.logger.Debug("User unregistered", "user", e.key, "conn_id", e.conn.ID())
}

// AuthCheck reports whether conn's logged-in state equals loggedIn.
func (m *Master) AuthCheck(conn Conn, loggedIn bool) bool {
	_, ok := m.AuthGet(conn)
	return ok == loggedIn
}

// AuthGet returns the live endpoint bound to conn.
func (m *Master) AuthGet(conn Conn) (*Endpoint, bool) {
	if conn == nil {
		return nil, false
	}
	e, ok := m.sessions[conn.ID()]
	if !ok || !m.list.Owns(e) {
		return nil, false
	}
	return e, true
}

// Unbind drops the session binding of conn without touching membership.
// It clears stale bindings left by expired sessions.
func (m *Master) Unbind(conn Conn) {
	if conn != nil {
		delete(m.sessions, conn.ID())
	}
}

// ForceLogout removes user and tells its connection it was logged out.
// It reports whether the user was logged in.
func (m *Master) ForceLogout(user, reason string) bool {
	e, err := m.list.Remove(user)
	if err != nil {
		return false
	}
	if err := e.Notify(CodeLoggedOut, nil, messaging.Kwargs{"reason": reason}); err != nil {
		m.logger.Debug("Forced logout notification failed", "user", user, "error", err)
	}
	return true
}

// SlaveRegister creates a slave bound to the master.
func (m *Master) SlaveRegister(key string) (*Slave, error) {
	if key == "" {
		return nil, fmt.Errorf("slave key must not be empty")
	}
	if _, ok := m.slaves[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSlave, key)
	}

	s := &Slave{
		Group:  newGroup(key, m.mu, m.logger.With("slave", key)),
		master: m,
	}
	m.slaves[key] = s
	m.order = append(m.order, key)
	m.logger.Debug("Slave registered", "slave", key)
	return s, nil
}

// SlaveUnregister destroys a slave, force-parting and notifying each of its
// members. Master membership is untouched.
func (m *Master) SlaveUnregister(key string) error {
	s, ok := m.slaves[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlave, key)
	}

	for _, user := range s.list.Keys() {
		s.forcePart(user, ReasonSlaveUnregister)
	}

	delete(m.slaves, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.logger.Debug("Slave unregistered", "slave", key)
	return nil
}

// Slave returns the slave registered under key.
func (m *Master) Slave(key string) (*Slave, bool) {
	s, ok := m.slaves[key]
	return s, ok
}

// Slaves returns slave keys in creation order.
func (m *Master) Slaves() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// SlavesOf returns the keys of the slaves user belongs to.
func (m *Master) SlavesOf(user string) []string {
	var out []string
	for _, key := range m.order {
		if m.slaves[key].list.Contains(user) {
			out = append(out, key)
		}
	}
	return out
}

// Slave is a group whose members are users of its master. It holds no
// login state: authentication is delegated to the master.
type Slave struct {
	*Group
	master *Master
}

// Master returns the owning master.
func (s *Slave) Master() *Master { return s.master }

// Register inserts an endpoint created by the master.
func (s *Slave) Register(e *Endpoint) error {
	if !s.master.list.Owns(e) {
		return fmt.Errorf("%w: endpoint is not a member of master %s", ErrUnknownMember, s.master.key)
	}
	return s.list.Insert(e)
}

// Join is an alias of Register.
func (s *Slave) Join(e *Endpoint) error { return s.Register(e) }

// Part removes user from the slave.
func (s *Slave) Part(user string) error { return s.Unregister(user) }

// ForcePart removes user and notifies it and the remaining members.
// It reports whether user was a member.
func (s *Slave) ForcePart(user, reason string) bool {
	return s.forcePart(user, reason)
}

func (s *Slave) forcePart(user, reason string) bool {
	e, err := s.list.Remove(user)
	if err != nil {
		return false
	}

	kwargs := messaging.Kwargs{"channel": s.key, "user": user, "reason": reason}
	if err := e.Notify(CodeParted, nil, kwargs); err != nil {
		s.logger.Debug("Forced part notification failed", "user", user, "error", err)
	}
	if err := s.Broadcast(CodeParted, nil, nil, kwargs); err != nil {
		s.logger.Debug("Part broadcast incomplete", "user", user, "error", err)
	}
	return true
}

// AuthCheck delegates to the master.
func (s *Slave) AuthCheck(conn Conn, loggedIn bool) bool {
	return s.master.AuthCheck(conn, loggedIn)
}

// AuthGet delegates to the master.
func (s *Slave) AuthGet(conn Conn) (*Endpoint, bool) {
	return s.master.AuthGet(conn)
}
