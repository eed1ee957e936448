package conversation

import "errors"

var (
	ErrClosed       = errors.New("conversation closed")
	ErrEmptyMessage = errors.New("message body is empty")

	// ErrRejected wraps the reason the server refused a realtime send.
	ErrRejected = errors.New("message rejected")
)
