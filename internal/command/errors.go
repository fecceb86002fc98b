package command

import "errors"

// Errors reported in /error replies.
var (
	// ErrNotSlave is returned by slave commands outside slave mode.
	ErrNotSlave = errors.New("slave mode not activated")

	// ErrStopped is returned when a command arrives after Stop.
	ErrStopped = errors.New("command dispatcher stopped")
)
