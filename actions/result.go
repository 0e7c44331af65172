package actions

// Result is the tagged outcome of an access check. Reason carries a
// domain-specific code (e.g. "already-active-session") forwarded verbatim to
// the client.
type Result struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Allow returns an allow-tagged result.
func Allow(reason string) Result {
	return Result{Allowed: true, Reason: reason}
}

// Deny returns a deny-tagged result.
func Deny(reason string) Result {
	return Result{Allowed: false, Reason: reason}
}

// Accepted reports whether r is allow-tagged.
func Accepted(r Result) bool {
	return r.Allowed
}

// String returns "allow:<reason>" or "deny:<reason>".
func (r Result) String() string {
	if r.Allowed {
		return "allow:" + r.Reason
	}
	return "deny:" + r.Reason
}

// Map returns the client-facing form of the result.
func (r Result) Map() map[string]any {
	return map[string]any{"allowed": r.Allowed, "reason": r.Reason}
}
