// Package config loads the YAML configuration of the chat server.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/cantrips/internal/protocol"
	"github.com/luciancaetano/cantrips/messaging"
)

// Transport engines.
const (
	EngineGorilla = "gorilla"
	EngineNhooyr  = "nhooyr"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Chat      ChatConfig      `yaml:"chat"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
}

// ServerConfig configures the listener and the protocol mode.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Path           string   `yaml:"path"`
	Engine         string   `yaml:"engine"`
	Strict         bool     `yaml:"strict"`
	MetricsPath    string   `yaml:"metrics_path"`
	MaxFrameSize   int64    `yaml:"max_frame_size"`
	AllowedOrigins []string `yaml:"allowed_origins"` // empty allows all
}

// RateLimitConfig configures the per-connection token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ChatConfig configures the chat traits.
type ChatConfig struct {
	Users          []UserConfig `yaml:"users"`
	AllowAnonymous bool         `yaml:"allow_anonymous"`
	Channels       []string     `yaml:"channels"`
	AllowCreate    bool         `yaml:"allow_create"`
	AllowClose     bool         `yaml:"allow_close"`
}

// UserConfig is one known user. PasswordHash is a bcrypt hash.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// ProtocolConfig extends the protocol with extra commands.
type ProtocolConfig struct {
	Extensions messaging.Specification `yaml:"extensions"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Path:         "/ws",
			Engine:       EngineGorilla,
			Strict:       true,
			MetricsPath:  "/metrics",
			MaxFrameSize: protocol.MaxFrameSize,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 100,
			Burst:             200,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with /: %q", c.Server.Path))
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("server.metrics_path must start with /: %q", c.Server.MetricsPath))
	} else if c.Server.MetricsPath == c.Server.Path {
		errs = append(errs, errors.New("server.metrics_path must differ from server.path"))
	}
	switch c.Server.Engine {
	case EngineGorilla, EngineNhooyr:
	default:
		errs = append(errs, fmt.Errorf("server.engine must be %q or %q, got %q", EngineGorilla, EngineNhooyr, c.Server.Engine))
	}
	if c.Server.MaxFrameSize <= 0 || c.Server.MaxFrameSize > protocol.MaxFrameSize {
		errs = append(errs, fmt.Errorf("server.max_frame_size must be in (0, %d]", protocol.MaxFrameSize))
	}

	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.messages_per_second and rate_limit.burst must be positive"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	seen := make(map[string]bool, len(c.Chat.Users))
	for i, u := range c.Chat.Users {
		if u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("chat.users[%d] needs username and password_hash", i))
			continue
		}
		if seen[u.Username] {
			errs = append(errs, fmt.Errorf("chat.users[%d]: duplicate username %q", i, u.Username))
		}
		seen[u.Username] = true
	}
	if len(c.Chat.Users) == 0 && !c.Chat.AllowAnonymous {
		errs = append(errs, errors.New("chat.users is empty and chat.allow_anonymous is false: nobody can log in"))
	}
	for i, ch := range c.Chat.Channels {
		if ch == "" {
			errs = append(errs, fmt.Errorf("chat.channels[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the configured slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Passwords returns username to bcrypt hash.
func (c ChatConfig) Passwords() map[string]string {
	out := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		out[u.Username] = u.PasswordHash
	}
	return out
}
