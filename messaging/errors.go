package messaging

import "errors"

// Registry and envelope errors. They are always returned wrapped with the
// offending code, so compare with errors.Is.
var (
	ErrDuplicateNamespace = errors.New("namespace already registered")
	ErrDuplicateCommand   = errors.New("command already registered")
	ErrUnknownNamespace   = errors.New("namespace not registered")
	ErrUnknownCommand     = errors.New("command not registered")
	ErrInvalidFormat      = errors.New("invalid message format")
	ErrDirectionViolation = errors.New("message direction not allowed")
)

// IsInvalidFormat reports whether err comes from a malformed envelope.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, ErrInvalidFormat)
}

// IsProtocolViolation reports whether err names a message that does not exist
// or may not travel in the requested direction.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrUnknownNamespace) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrDirectionViolation)
}
