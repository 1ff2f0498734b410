package comms

import "errors"

// Sentinel errors for bus operations.
var (
	ErrUnknownKey = errors.New("unknown message key")
	ErrUnroutable = errors.New("no connector for recipient")
)
