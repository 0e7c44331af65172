package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestSet(t *testing.T) *NamespaceSet {
	t.Helper()

	set, err := NewNamespaceSet(Specification{
		"chat": {
			"say":  ClientToServer,
			"said": ServerToClient,
			"ping": Both,
		},
		"game.lobby": {
			"move": ClientToServer,
		},
	})
	require.NoError(t, err)
	return set
}

// TestDirection tests direction predicates and wire names
func TestDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		direction Direction
		name      string
		toClient  bool
		toServer  bool
	}{
		{ServerToClient, "client", true, false},
		{ClientToServer, "server", false, true},
		{Both, "both", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.name, tt.direction.String())
			assert.Equal(t, tt.toClient, tt.direction.ToClient())
			assert.Equal(t, tt.toServer, tt.direction.ToServer())

			parsed, err := ParseDirection(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.direction, parsed)
		})
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)

	upper, err := ParseDirection("  BOTH ")
	require.NoError(t, err)
	assert.Equal(t, Both, upper)
}

// TestSpecificationDecoding tests that directions decode from JSON and YAML documents
func TestSpecificationDecoding(t *testing.T) {
	t.Parallel()

	want := Specification{"auth": {"login": ClientToServer, "logged-out": ServerToClient}}

	var fromJSON Specification
	require.NoError(t, json.Unmarshal([]byte(`{"auth":{"login":"server","logged-out":"client"}}`), &fromJSON))
	assert.Equal(t, want, fromJSON)

	var fromYAML Specification
	require.NoError(t, yaml.Unmarshal([]byte("auth:\n  login: server\n  logged-out: Client\n"), &fromYAML))
	assert.Equal(t, want, fromYAML)

	var bad Specification
	assert.Error(t, json.Unmarshal([]byte(`{"auth":{"login":"up"}}`), &bad))
}

// TestSpecifications tests that later providers overwrite earlier commands
// and that distinct commands of a namespace coexist
func TestSpecifications(t *testing.T) {
	t.Parallel()

	p1 := Specification{"a": {"x": ClientToServer, "z": ServerToClient}}
	p2 := Specification{"a": {"x": ServerToClient, "y": ClientToServer}}
	p1Before, p2Before := p1.Clone(), p2.Clone()

	got := Specifications(p1, nil, p2)
	assert.Equal(t, Specification{"a": {"x": ServerToClient, "y": ClientToServer, "z": ServerToClient}}, got)
	assert.Equal(t, p1Before, p1)
	assert.Equal(t, p2Before, p2)

	got["a"]["w"] = Both
	assert.NotContains(t, p1["a"], "w")

	fn := ProviderFunc(func() Specification { return Specification{"b": {"q": Both}} })
	assert.Equal(t, Specification{
		"a": {"x": ClientToServer, "z": ServerToClient},
		"b": {"q": Both},
	}, Specifications(p1, fn))
	assert.Empty(t, Specifications())
}

// TestSpecificationClone tests that clones share no command maps
func TestSpecificationClone(t *testing.T) {
	t.Parallel()

	spec := Specification{"a": {"x": ClientToServer}}
	clone := spec.Clone()
	clone["a"]["x"] = ServerToClient
	clone["b"] = map[string]Direction{"y": Both}

	assert.Equal(t, Specification{"a": {"x": ClientToServer}}, spec)
}

// TestParseCode tests splitting codes on the last dot
func TestParseCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		want      Code
		wantError bool
	}{
		{in: "ns.cmd", want: Code{"ns", "cmd"}},
		{in: "a.b.c", want: Code{"a.b", "c"}},
		{in: "nodot", wantError: true},
		{in: ".cmd", want: Code{"", "cmd"}},
		{in: "ns.", want: Code{"ns", ""}},
		{in: ".", want: Code{"", ""}},
		{in: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCode(tt.in)
			if tt.wantError {
				require.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

// TestNamespaceRegister tests duplicate handling in a namespace
func TestNamespaceRegister(t *testing.T) {
	t.Parallel()

	set, err := NewNamespaceSet(nil)
	require.NoError(t, err)

	ns, err := set.Register("chat", false)
	require.NoError(t, err)

	original, err := ns.Register("say", ClientToServer, false)
	require.NoError(t, err)

	_, err = ns.Register("say", ServerToClient, false)
	require.ErrorIs(t, err, ErrDuplicateCommand)

	existing, err := ns.Register("say", ServerToClient, true)
	require.NoError(t, err)
	assert.Same(t, original, existing)
	assert.Equal(t, ClientToServer, existing.Direction(), "direction must not be overwritten")

	_, err = ns.Register("", Both, false)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ns.Register("bad", Direction(8), false)
	assert.Error(t, err)

	found, err := ns.Find("say")
	require.NoError(t, err)
	assert.Same(t, original, found)

	_, err = ns.Find("shout")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	assert.Equal(t, []string{"say"}, ns.Commands())
}

// TestNamespaceSetRegister tests duplicate handling in a namespace set
func TestNamespaceSetRegister(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)

	_, err := set.Register("chat", false)
	require.ErrorIs(t, err, ErrDuplicateNamespace)

	existing, err := set.Register("chat", true)
	require.NoError(t, err)
	found, err := set.Find("chat")
	require.NoError(t, err)
	assert.Same(t, found, existing)

	_, err = set.Find("nope")
	assert.ErrorIs(t, err, ErrUnknownNamespace)

	assert.Equal(t, []string{"chat", "game.lobby", "messaging"}, set.Namespaces())
}

// TestReservedErrorCommand tests that every set carries messaging.error
func TestReservedErrorCommand(t *testing.T) {
	t.Parallel()

	set, err := NewNamespaceSet(Specification{})
	require.NoError(t, err)

	cmd, err := set.Command(Code{NamespaceMessaging, CommandError})
	require.NoError(t, err)
	assert.Equal(t, ServerToClient, cmd.Direction())

	// a specification may not silently redefine the reserved command
	set, err = NewNamespaceSet(Specification{NamespaceMessaging: {CommandError: ClientToServer}})
	require.NoError(t, err)
	cmd, err = set.Command(Code{NamespaceMessaging, CommandError})
	require.NoError(t, err)
	assert.Equal(t, ServerToClient, cmd.Direction())
}

// TestSerializeDirection tests client-bound serialization against command directions
func TestSerializeDirection(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)

	tests := []struct {
		code      Code
		wantError bool
	}{
		{Code{"chat", "say"}, true},
		{Code{"chat", "said"}, false},
		{Code{"chat", "ping"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			t.Parallel()

			msg, err := set.Build(tt.code, []any{"x"}, Kwargs{"k": 1})
			require.NoError(t, err)

			env, err := msg.Serialize(true)
			if tt.wantError {
				require.ErrorIs(t, err, ErrDirectionViolation)
			} else {
				require.NoError(t, err)
			}

			// without the expectation every direction serializes
			env, err = msg.Serialize(false)
			require.NoError(t, err)
			assert.Equal(t, tt.code.String(), env.Code)
			assert.Equal(t, []any{"x"}, env.Args)
			assert.Equal(t, map[string]any{"k": 1}, env.Kwargs)
		})
	}
}

// TestSerializeEmpty tests that empty args and kwargs are not serialized as null
func TestSerializeEmpty(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)
	msg, err := set.Build(Code{"chat", "said"}, nil, nil)
	require.NoError(t, err)

	frame, err := set.Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"chat.said","args":[],"kwargs":{}}`, string(frame))
}

// TestRoundTrip tests that unserializing a serialized message rebuilds it
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)

	messages := []Message{}
	for _, code := range []Code{{"chat", "say"}, {"chat", "said"}, {"chat", "ping"}, {"game.lobby", "move"}} {
		msg, err := set.Build(code, []any{"hello", float64(3), true}, Kwargs{"to": "bob", "n": []any{float64(1)}})
		require.NoError(t, err)
		messages = append(messages, msg)
	}

	for _, msg := range messages {
		env, err := msg.Serialize(false)
		require.NoError(t, err)

		got, err := set.Unserialize(env, false)
		require.NoError(t, err)
		assert.Equal(t, msg.Code(), got.Code())
		assert.Equal(t, msg.Args(), got.Args())
		assert.Equal(t, msg.Kwargs(), got.Kwargs())

		// and through the wire
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		decoded, err := set.Decode(raw, false)
		require.NoError(t, err)
		assert.Equal(t, msg.Code(), decoded.Code())
		// numbers come off the wire as json.Number
		assert.Equal(t, []any{"hello", json.Number("3"), true}, decoded.Args())
		assert.Equal(t, Kwargs{"to": "bob", "n": []any{json.Number("1")}}, decoded.Kwargs())
	}
}

// TestUnserialize tests envelope validation and resolution
func TestUnserialize(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)

	tests := []struct {
		name         string
		obj          any
		expectServer bool
		wantError    error
		wantCode     Code
	}{
		{
			name:         "valid server-bound command",
			obj:          map[string]any{"code": "chat.say", "args": []any{}, "kwargs": map[string]any{"message": "hi"}},
			expectServer: true,
			wantCode:     Code{"chat", "say"},
		},
		{
			name:         "dotted namespace",
			obj:          map[string]any{"code": "game.lobby.move", "args": []any{}, "kwargs": map[string]any{}},
			expectServer: true,
			wantCode:     Code{"game.lobby", "move"},
		},
		{
			name:         "client-only command sent to server",
			obj:          map[string]any{"code": "chat.said", "args": []any{}, "kwargs": map[string]any{}},
			expectServer: true,
			wantError:    ErrDirectionViolation,
		},
		{
			name:         "client-only command without expectation",
			obj:          map[string]any{"code": "chat.said", "args": []any{}, "kwargs": map[string]any{}},
			expectServer: false,
			wantCode:     Code{"chat", "said"},
		},
		{
			name:      "code without dot",
			obj:       map[string]any{"code": "nodot", "args": []any{}, "kwargs": map[string]any{}},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "unknown namespace",
			obj:       map[string]any{"code": "ns.cmd", "args": []any{}, "kwargs": map[string]any{}},
			wantError: ErrUnknownNamespace,
		},
		{
			name:      "unknown command",
			obj:       map[string]any{"code": "chat.cmd", "args": []any{}, "kwargs": map[string]any{}},
			wantError: ErrUnknownCommand,
		},
		{
			name:      "empty namespace",
			obj:       map[string]any{"code": ".say", "args": []any{}, "kwargs": map[string]any{}},
			wantError: ErrUnknownNamespace,
		},
		{
			name:      "empty command",
			obj:       map[string]any{"code": "chat.", "args": []any{}, "kwargs": map[string]any{}},
			wantError: ErrUnknownCommand,
		},
		{
			name:      "code is not a string",
			obj:       map[string]any{"code": float64(1), "args": []any{}, "kwargs": map[string]any{}},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "args is not a list",
			obj:       map[string]any{"code": "chat.say", "args": map[string]any{}, "kwargs": map[string]any{}},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "kwargs is not a map",
			obj:       map[string]any{"code": "chat.say", "args": []any{}, "kwargs": []any{}},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "missing kwargs",
			obj:       map[string]any{"code": "chat.say", "args": []any{}},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "extra field",
			obj:       map[string]any{"code": "chat.say", "args": []any{}, "kwargs": map[string]any{}, "id": "1"},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "not an object",
			obj:       []any{"chat.say"},
			wantError: ErrInvalidFormat,
		},
		{
			name:      "envelope with nil args",
			obj:       Envelope{Code: "chat.say", Kwargs: map[string]any{}},
			wantError: ErrInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := set.Unserialize(tt.obj, tt.expectServer)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, msg.Code())
		})
	}
}

// TestDecodeFrames tests raw frame decoding
func TestDecodeFrames(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)

	tests := []struct {
		name      string
		frame     string
		wantError error
	}{
		{"valid", `{"code":"chat.say","args":["a"],"kwargs":{"message":"hi"}}`, nil},
		{"malformed json", `{"code":`, ErrInvalidFormat},
		{"duplicate kwargs key", `{"code":"chat.say","args":[],"kwargs":{"a":1,"a":2}}`, ErrInvalidFormat},
		{"null args", `{"code":"chat.say","args":null,"kwargs":{}}`, ErrInvalidFormat},
		{"unknown command", `{"code":"chat.shout","args":[],"kwargs":{}}`, ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := set.Decode([]byte(tt.frame), true)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a", msg.Arg(0))
			assert.Nil(t, msg.Arg(1))
			text, ok := msg.Text("message")
			assert.True(t, ok)
			assert.Equal(t, "hi", text)
		})
	}
}

// TestMessageImmutability tests that accessors hand out copies
func TestMessageImmutability(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)
	args := []any{"a"}
	kwargs := Kwargs{"k": "v"}

	msg, err := set.Build(Code{"chat", "said"}, args, kwargs)
	require.NoError(t, err)

	args[0] = "changed"
	kwargs["k"] = "changed"
	msg.Args()[0] = "changed"
	msg.Kwargs()["k"] = "changed"

	assert.Equal(t, "a", msg.Arg(0))
	v, ok := msg.Kwarg("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

// TestErrorClassification tests the close-code oriented helpers
func TestErrorClassification(t *testing.T) {
	t.Parallel()

	set := newTestSet(t)

	_, err := set.Decode([]byte(`nope`), true)
	assert.True(t, IsInvalidFormat(err))
	assert.False(t, IsProtocolViolation(err))

	_, err = set.Decode([]byte(`{"code":"x.y","args":[],"kwargs":{}}`), true)
	assert.True(t, IsProtocolViolation(err))
	assert.False(t, IsInvalidFormat(err))

	_, err = set.Decode([]byte(`{"code":"chat.said","args":[],"kwargs":{}}`), true)
	assert.True(t, IsProtocolViolation(err))
}
