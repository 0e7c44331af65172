// Package chat implements a chat protocol on top of the broadcast hierarchy:
// login and logout on the master, channels as its slaves, public messages
// and whispers.
//
// Every stateful command is an access-controlled action. Its gate returns an
// allow or deny result with a reason, and both branches answer the sender with
// notify.response:
//
//	{"code": "notify.response", "args": [],
//	 "kwargs": {"command": "channel.join",
//	            "result": {"allowed": false, "reason": "already-in"},
//	            "channel": "general"}}
//
// A Server wires the traits into one namespace set and one router. Every
// route runs under the master's lock, so a command and the cascades it
// triggers are atomic with respect to other connections.
package chat
