package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/cantrips"
	"github.com/luciancaetano/cantrips/chat"
	"github.com/luciancaetano/cantrips/messaging"
	"github.com/luciancaetano/cantrips/protocol"
)

type frame struct {
	Code   string         `json:"code"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

func startServer(t *testing.T, cfg ServerConfig) string {
	t.Helper()
	cfg.Logger = slog.New(slog.DiscardHandler)
	srv := httptest.NewServer(New(&cfg).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func chatProtocol(t *testing.T) *protocol.Protocol {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	srv, err := chat.NewServer(chat.Config{
		Validator: chat.AnyValidator(),
		Channels:  []string{"general"},
		Logger:    logger,
	})
	require.NoError(t, err)
	proto, err := srv.Protocol(protocol.WithLogger(logger))
	require.NoError(t, err)
	return proto
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func write(t *testing.T, conn *websocket.Conn, code string, kwargs map[string]any) {
	t.Helper()
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	require.NoError(t, conn.WriteJSON(frame{Code: code, Args: []any{}, Kwargs: kwargs}))
}

// readUntil reads frames until one carries code.
func readUntil(t *testing.T, conn *websocket.Conn, code string) frame {
	t.Helper()
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Code == code {
			return f
		}
	}
}

// readClose reads until the server closes the connection and returns the close error.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "unexpected read error: %v", err)
		return ce
	}
}

// TestChatOverWebSocket tests a login and a channel message between two sockets
func TestChatOverWebSocket(t *testing.T) {
	t.Parallel()

	url := startServer(t, ServerConfig{Protocol: chatProtocol(t), RateLimitConfig: NoRateLimit()})

	alice := dial(t, url)
	write(t, alice, "auth.login", map[string]any{"username": "alice"})
	resp := readUntil(t, alice, "notify.response")
	assert.Equal(t, "auth.login", resp.Kwargs["command"])
	assert.Equal(t, map[string]any{"allowed": true, "reason": "logged-in"}, resp.Kwargs["result"])
	list := readUntil(t, alice, "channel.list")
	assert.Equal(t, []any{"general"}, list.Kwargs["channels"])

	bob := dial(t, url)
	write(t, bob, "auth.login", map[string]any{"username": "bob"})
	readUntil(t, bob, "channel.list")

	write(t, alice, "channel.join", map[string]any{"channel": "general"})
	readUntil(t, alice, "notify.response")
	write(t, bob, "channel.join", map[string]any{"channel": "general"})
	readUntil(t, bob, "notify.response")
	joined := readUntil(t, alice, "channel.joined")
	assert.Equal(t, "bob", joined.Kwargs["user"])

	write(t, bob, "say.say", map[string]any{"channel": "general", "message": "hi"})
	said := readUntil(t, alice, "say.said")
	assert.Equal(t, map[string]any{"user": "bob", "channel": "general", "message": "hi"}, said.Kwargs)

	write(t, bob, "auth.logout", nil)
	parted := readUntil(t, alice, "channel.parted")
	assert.Equal(t, "bob", parted.Kwargs["user"])
}

// TestCloseCodes tests the close code sent for each kind of bad frame
func TestCloseCodes(t *testing.T) {
	t.Parallel()

	url := startServer(t, ServerConfig{Protocol: chatProtocol(t), RateLimitConfig: NoRateLimit()})

	tests := []struct {
		name     string
		frame    string
		wantCode int
	}{
		{"garbage", "not json", cantrips.CloseFormatError},
		{"missing kwargs", `{"code":"auth.login","args":[]}`, cantrips.CloseFormatError},
		{"unknown command", `{"code":"auth.nope","args":[],"kwargs":{}}`, cantrips.CloseUnavailable},
		{"wrong direction", `{"code":"say.said","args":[],"kwargs":{}}`, cantrips.CloseUnavailable},
		{"empty namespace", `{"code":".login","args":[],"kwargs":{}}`, cantrips.CloseUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := dial(t, url)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			assert.Equal(t, tt.wantCode, readClose(t, conn).Code)
		})
	}
}

// TestRateLimitClose tests that flooding clients are closed with a policy violation
func TestRateLimitClose(t *testing.T) {
	t.Parallel()

	ns, err := messaging.NewNamespaceSet(messaging.Specification{"echo": {"ping": messaging.ClientToServer}})
	require.NoError(t, err)
	router := protocol.NewRouter()
	require.NoError(t, router.HandleFunc("echo.ping", func(*protocol.Conn, messaging.Message) (bool, error) {
		return true, nil
	}))
	proto, err := protocol.New(ns, router, protocol.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	url := startServer(t, ServerConfig{
		Protocol:        proto,
		RateLimitConfig: &RateLimitConfig{MessagesPerSecond: 0.001, Burst: 2, Enabled: true},
	})

	conn := dial(t, url)
	for i := 0; i < 3; i++ {
		write(t, conn, "echo.ping", nil)
	}
	ce := readClose(t, conn)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Equal(t, cantrips.ErrRateLimitExceeded, ce.Text)
}

// TestDisconnectCallback tests the connect and disconnect callbacks
func TestDisconnectCallback(t *testing.T) {
	t.Parallel()

	connected := make(chan string, 1)
	gone := make(chan bool, 1)
	url := startServer(t, ServerConfig{
		Protocol:           chatProtocol(t),
		RateLimitConfig:    NoRateLimit(),
		OnConnect:          func(c cantrips.Client) { connected <- c.ID() },
		OnClientDisconnect: func(_ cantrips.Client, voluntary bool) { gone <- voluntary },
	})

	conn := dial(t, url)
	select {
	case id := <-connected:
		assert.NotEmpty(t, id)
	case <-time.After(5 * time.Second):
		t.Fatal("OnConnect never ran")
	}

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	select {
	case voluntary := <-gone:
		assert.True(t, voluntary)
	case <-time.After(5 * time.Second):
		t.Fatal("OnClientDisconnect never ran")
	}
}

// TestClientLookup tests finding, messaging and counting connected clients
func TestClientLookup(t *testing.T) {
	t.Parallel()

	connected := make(chan string, 1)
	server := New(&ServerConfig{
		Protocol:        chatProtocol(t),
		RateLimitConfig: NoRateLimit(),
		OnConnect:       func(c cantrips.Client) { connected <- c.ID() },
		Logger:          slog.New(slog.DiscardHandler),
	})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	assert.Equal(t, 0, server.ClientCount())
	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")

	var id string
	select {
	case id = <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("OnConnect never ran")
	}
	assert.Equal(t, 1, server.ClientCount())

	client, ok := server.GetClient(id)
	require.True(t, ok)
	assert.Equal(t, id, client.ID())
	_, ok = server.GetClient("missing")
	assert.False(t, ok)

	require.NoError(t, server.SendToClient(id, []byte(`{"code":"channel.list","args":[],"kwargs":{"channels":[]}}`)))
	readUntil(t, conn, "channel.list")
	assert.ErrorContains(t, server.SendToClient("missing", []byte("{}")), cantrips.ErrClientNotFound)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return server.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
