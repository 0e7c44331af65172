package chat

// Policy decides who may create and close channels. A nil function denies.
type Policy struct {
	AllowCreate func(user, channel string) bool
	AllowClose  func(user, channel string) bool
}

func (p Policy) canCreate(user, channel string) bool {
	return p.AllowCreate != nil && p.AllowCreate(user, channel)
}

func (p Policy) canClose(user, channel string) bool {
	return p.AllowClose != nil && p.AllowClose(user, channel)
}

func allow(string, string) bool { return true }

// AllowAllPolicy lets every logged-in user create and close channels.
func AllowAllPolicy() Policy {
	return Policy{AllowCreate: allow, AllowClose: allow}
}

// DenyAllPolicy forbids creating and closing channels over the wire. Channels
// can still be set up by the server.
func DenyAllPolicy() Policy {
	return Policy{}
}
