package transport

import "errors"

var (
	// ErrNoReceiver is returned by Send for a message without receiver.
	ErrNoReceiver = errors.New("message has no receiver")

	// ErrClosed is returned by Send after Stop.
	ErrClosed = errors.New("transport closed")
)
