// Package broadcast implements the subscriber registry and the nested
// broadcast hierarchy.
//
// A Registry is an ordered, key-unique list of endpoints that emits insert
// and remove events. A Group notifies one member or broadcasts to every
// member accepted by a Criterion. A Master owns user sessions and binds each
// logged-in user to its connection; its Slaves (channels) may only hold
// endpoints the master owns, and removing a user from the master removes it
// from every slave without any explicit call on them.
//
//	master := broadcast.NewMaster("server")
//	alice, _ := master.Register("alice", conn)
//	room, _ := master.SlaveRegister("room")
//	_ = room.Join(alice)
//	_ = room.Broadcast(code, broadcast.Others("alice"), nil, kwargs)
//	_ = master.Unregister("alice") // alice leaves room too
//
// None of these types lock on their own. Goroutines sharing a hierarchy run
// each whole operation inside Do.
package broadcast
