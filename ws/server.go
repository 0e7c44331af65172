// Package ws exposes the WebSocket transports serving a protocol.
package ws

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/internal/nhooyrws"
	"github.com/luciancaetano/cantrips/internal/websocket"
	"github.com/luciancaetano/cantrips/protocol"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type ServerConfig = *websocket.ServerConfig

// New creates a gorilla/websocket server serving proto at "/ws".
//
// Parameters:
//   - addr: The server address (e.g., ":8080" or "localhost:8080")
//   - proto: The protocol every connection speaks
//   - rateLimitConfig: Rate limiting configuration. Use DefaultRateLimitConfig() or NoRateLimit()
//   - checkOrigin: Function to validate WebSocket origins. Use AllOrigins() to allow all (dev only)
//
// Example:
//
//	server := ws.New(":8080", proto, ws.DefaultRateLimitConfig(), ws.AllOrigins())
func New(addr string, proto *protocol.Protocol, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn) cantrips.Server {
	return NewWithConfig(NewConfig(addr, proto, rateLimitConfig, checkOrigin, nil, nil))
}

// NewWithConfig creates a gorilla/websocket server from a full configuration.
func NewWithConfig(cfg ServerConfig) cantrips.Server {
	return websocket.New(cfg)
}

// NewConfig builds a server configuration with connection callbacks.
func NewConfig(addr string, proto *protocol.Protocol, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &websocket.ServerConfig{
		Addr:               addr,
		Protocol:           proto,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
	}
}

// NewNhooyrHandler returns an http.Handler serving proto with nhooyr.io/websocket.
// origins follows the same rules as AllowedOrigins; "*" accepts every origin.
// A maxFrameSize <= 0 selects the codec maximum of 10MB.
func NewNhooyrHandler(proto *protocol.Protocol, rateLimitConfig *RateLimitConfig, maxFrameSize int64, origins ...string) http.Handler {
	cfg := nhooyrws.Config{
		Protocol:       proto,
		OriginPatterns: origins,
		MaxFrameSize:   maxFrameSize,
	}
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		cfg.Limit = rateLimitConfig.MessagesPerSecond
		cfg.Burst = rateLimitConfig.Burst
	}
	return nhooyrws.NewHandler(cfg)
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// AllowedOrigins accepts requests without an Origin header and requests
// whose Origin host is listed. "*" allows every origin.
func AllowedOrigins(hosts ...string) CheckOriginFn {
	if slices.Contains(hosts, "*") {
		return AllOrigins()
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(hosts, u.Host)
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
