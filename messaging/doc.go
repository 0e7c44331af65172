// Package messaging declares the wire protocol: namespaces of direction-tagged
// commands, the messages built from them, and the {code, args, kwargs}
// envelope they travel in.
//
// A protocol is assembled from Providers, each contributing a Specification
// ({namespace: {command: direction}}), merged with Specifications and frozen
// into a NamespaceSet:
//
//	spec := messaging.Specifications(auth, channels, say)
//	set, err := messaging.NewNamespaceSet(spec)
//
//	// inbound: the frame must name a command clients may send
//	msg, err := set.Decode(frame, true)
//
//	// outbound: the command must be deliverable to clients
//	out, err := set.Build(messaging.Code{Namespace: "say", Command: "said"}, nil, messaging.Kwargs{"message": "hi"})
//	frame, err := set.Encode(out)
//
// Codes are split on their last dot, so a namespace may itself contain dots
// ("game.lobby.chat" is command "chat" of namespace "game.lobby").
package messaging
