// Package cantrips provides a namespaced command protocol for realtime
// servers: typed commands grouped in namespaces, a JSON envelope, stateful
// commands expressed as access-controlled actions and nested broadcast groups
// that keep their memberships consistent.
//
// # Architecture
//
// The library is split in layers, leaf first:
//
//   - messaging: directions, commands, namespaces and the
//     {code, args, kwargs} envelope
//   - actions: the access-controlled action (is-allowed, on-allowed,
//     on-denied)
//   - broadcast: subscriber registries, broadcasts and the master/slave
//     hierarchy
//   - protocol: per-connection processing and close-code mapping
//   - chat: login, channels, say and whisper built on the layers above
//
// Transports live in internal packages and are reached through the ws
// facade. The protocol core performs no network I/O of its own.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/cantrips/chat"
//	    "github.com/luciancaetano/cantrips/ws"
//	)
//
//	srv, _ := chat.NewServer(chat.Config{Validator: chat.AnyValidator()})
//	proto, _ := srv.Protocol()
//	server := ws.New(":8080", proto, ws.DefaultRateLimitConfig(), ws.AllOrigins())
//	server.Start(ctx)
//
// # Protocol Format
//
// Every frame is a JSON text message with exactly three keys:
//
//	{"code": "namespace.command", "args": [...], "kwargs": {...}}
//
// The namespace is everything before the last dot. Each command declares a
// direction (client, server or both) and a frame travelling the wrong way is
// a protocol violation. Maximum frame size: 10MB.
//
// # Close Codes
//
// In strict mode (the default) processing errors close the connection:
//
//	3003  Message format error
//	3002  Unexistent or unavailable message
//	3011  Cannot fulfill request: Internal server error
//
// A handler that asks to end the conversation closes with 1000. In non-strict
// mode errors are handed to the handler's Invalid hook instead.
//
// # Rate Limiting
//
// Each client has independent rate limiting using a token bucket:
//
//	// Default: 100 messages/second, burst 200
//	rateLimitConfig := ws.DefaultRateLimitConfig()
//
//	// Custom: 50 messages/second, burst 100
//	rateLimitConfig := &ws.RateLimitConfig{
//	    MessagesPerSecond: 50,
//	    Burst:             100,
//	    Enabled:           true,
//	}
//
// Clients exceeding their limit are closed with 1008 (policy violation).
package cantrips
