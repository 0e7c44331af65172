package actions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	user  string
	trace *[]string
}

func recordingAction(t *testing.T) *Guarded[request] {
	t.Helper()

	a, err := NewGuarded(
		func(r request) Result {
			*r.trace = append(*r.trace, "check")
			if r.user == "" {
				return Deny("anonymous")
			}
			return Allow("ok")
		},
		func(res Result, r request) error {
			*r.trace = append(*r.trace, "allowed:"+res.Reason)
			return nil
		},
		func(res Result, r request) error {
			*r.trace = append(*r.trace, "denied:"+res.Reason)
			return nil
		},
	)
	require.NoError(t, err)
	return a
}

// TestGuardedRun tests the branch selection of a guarded action
func TestGuardedRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		user      string
		wantTrace []string
		want      Result
	}{
		{
			name:      "allowed",
			user:      "alice",
			wantTrace: []string{"check", "allowed:ok"},
			want:      Allow("ok"),
		},
		{
			name:      "denied",
			user:      "",
			wantTrace: []string{"check", "denied:anonymous"},
			want:      Deny("anonymous"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var trace []string
			got, err := recordingAction(t).Run(request{user: tt.user, trace: &trace})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantTrace, trace)
		})
	}
}

// TestActionCustomAccepts tests an action over a non-Result gate value
func TestActionCustomAccepts(t *testing.T) {
	t.Parallel()

	var got []string
	a := Must(
		func(n int) int { return n * 2 },
		func(v int) bool { return v > 10 },
		func(v int, n int) error { got = append(got, "big"); return nil },
		func(v int, n int) error { got = append(got, "small"); return nil },
	)

	v, err := a.Run(3)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	v, err = a.Run(8)
	require.NoError(t, err)
	assert.Equal(t, 16, v)

	assert.Equal(t, []string{"small", "big"}, got)
}

// TestActionBranchError tests that branch errors are returned with the gate value
func TestActionBranchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a := MustGuarded(
		func(string) Result { return Allow("ok") },
		func(Result, string) error { return boom },
		func(Result, string) error { return nil },
	)

	res, err := a.Run("x")
	assert.ErrorIs(t, err, boom)
	assert.True(t, Accepted(res))
}

// TestIncompleteAction tests construction guards
func TestIncompleteAction(t *testing.T) {
	t.Parallel()

	_, err := NewGuarded[string](nil, nil, nil)
	assert.ErrorIs(t, err, ErrIncomplete)

	assert.Panics(t, func() {
		MustGuarded(func(string) Result { return Allow("") }, nil, nil)
	})
}

// TestResult tests the result helpers
func TestResult(t *testing.T) {
	t.Parallel()

	assert.True(t, Accepted(Allow("logged-in")))
	assert.False(t, Accepted(Deny("invalid-login")))
	assert.Equal(t, "allow:logged-in", Allow("logged-in").String())
	assert.Equal(t, "deny:invalid-login", Deny("invalid-login").String())
	assert.Equal(t, map[string]any{"allowed": false, "reason": "no-active-session"}, Deny("no-active-session").Map())
}
