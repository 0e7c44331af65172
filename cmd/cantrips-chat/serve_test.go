package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/luciancaetano/cantrips/internal/config"
)

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestBuildValidator(t *testing.T) {
	users := []config.UserConfig{{Username: "alice", PasswordHash: hashed(t, "secret")}}

	tests := []struct {
		name      string
		cfg       config.ChatConfig
		nilResult bool
		username  string
		password  string
		wantOK    bool
	}{
		{name: "nothing configured", cfg: config.ChatConfig{}, nilResult: true},
		{name: "known user", cfg: config.ChatConfig{Users: users}, username: "alice", password: "secret", wantOK: true},
		{name: "wrong password", cfg: config.ChatConfig{Users: users}, username: "alice", password: "nope"},
		{name: "unknown user", cfg: config.ChatConfig{Users: users}, username: "bob", password: "secret"},
		{name: "anonymous", cfg: config.ChatConfig{Users: users, AllowAnonymous: true}, username: "bob", wantOK: true},
		{name: "anonymous cannot take a known name", cfg: config.ChatConfig{Users: users, AllowAnonymous: true}, username: "alice", password: "nope"},
		{name: "anonymous only", cfg: config.ChatConfig{AllowAnonymous: true}, username: "carol", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := buildValidator(tt.cfg)
			require.NoError(t, err)
			if tt.nilResult {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			_, ok := v.Validate(tt.username, tt.password)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestBuildValidatorRejectsBadHash(t *testing.T) {
	_, err := buildValidator(config.ChatConfig{Users: []config.UserConfig{{Username: "alice", PasswordHash: "plain"}}})
	assert.Error(t, err)
}

func TestBuildPolicy(t *testing.T) {
	p := buildPolicy(config.ChatConfig{AllowCreate: true})
	require.NotNil(t, p.AllowCreate)
	assert.True(t, p.AllowCreate("alice", "general"))
	assert.Nil(t, p.AllowClose)
}

func TestRateLimit(t *testing.T) {
	assert.False(t, rateLimit(config.RateLimitConfig{}).Enabled)

	rl := rateLimit(config.RateLimitConfig{Enabled: true, MessagesPerSecond: 5, Burst: 10})
	assert.True(t, rl.Enabled)
	assert.EqualValues(t, 5, rl.MessagesPerSecond)
	assert.Equal(t, 10, rl.Burst)
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("hunter2\n"))
	rootCmd.SetArgs([]string{"hash-password"})
	require.NoError(t, rootCmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}
