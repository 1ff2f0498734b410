package protocol

import "errors"

// Sentinel errors for message validation. Validate wraps these with the
// failing detail; callers match with errors.Is.
var (
	ErrMissingKey       = errors.New("message key is empty")
	ErrMissingSender    = errors.New("message sender is empty")
	ErrMissingRecipient = errors.New("message has no recipients")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMissingTimestamp = errors.New("message timestamp is zero")
)
