package message

import "errors"

// Errors returned by the message package.
var (
	// ErrInvalidMessage is returned for envelopes that fail validation or decoding.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidAddress is returned by ParseAddress.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrArgCount is returned when a message has the wrong number of arguments.
	ErrArgCount = errors.New("invalid number of arguments")
)
