package cantrips

// Close codes sent by the protocol when it ends a connection.
const (
	// CloseNormal ends a connection the handler asked to close.
	CloseNormal = 1000
	// CloseUnavailable reports an unknown, unroutable or wrong-direction message.
	CloseUnavailable = 3002
	// CloseFormatError reports a frame that is not a valid envelope.
	CloseFormatError = 3003
	// CloseInternalError reports a failure while handling a valid message.
	CloseInternalError = 3011
)

// Close reasons paired with the close codes above.
const (
	ReasonUnavailable   = "Unexistent or unavailable message"
	ReasonFormatError   = "Message format error"
	ReasonInternalError = "Cannot fulfill request: Internal server error"
)

// Reserved namespace and command. Every protocol declares messaging.error as
// a server-to-client command.
const (
	NamespaceMessaging = "messaging"
	CommandError       = "error"
)

// Standard error messages
const (
	// Connection errors
	ErrClientNotFound       = "client not found"
	ErrConnectionClosed     = "client connection is closed"
	ErrSendQueueFull        = "client send queue is full"
	ErrServerAlreadyRunning = "server already running"
	ErrRateLimitExceeded    = "Rate limit exceeded"
)
