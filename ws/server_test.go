package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedOrigins(t *testing.T) {
	tests := []struct {
		name   string
		hosts  []string
		origin string
		want   bool
	}{
		{"no origin header", []string{"example.com"}, "", true},
		{"listed host", []string{"example.com"}, "https://example.com", true},
		{"listed host with port", []string{"localhost:3000"}, "http://localhost:3000", true},
		{"unlisted host", []string{"example.com"}, "https://evil.com", false},
		{"wildcard", []string{"*"}, "https://evil.com", true},
		{"nothing allowed", nil, "https://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, AllowedOrigins(tt.hosts...)(req))
		})
	}
}

func TestAllOrigins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, AllOrigins()(req))
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(":9000", nil, NoRateLimit(), AllOrigins(), nil, nil)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.False(t, cfg.RateLimitConfig.Enabled)
	assert.NotNil(t, cfg.CheckOrigin)
	assert.NotNil(t, New(":9000", nil, nil, nil))
}
