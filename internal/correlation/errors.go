package correlation

import (
	"errors"
	"fmt"
)

// Errors returned by the engine.
var (
	// ErrCommunicationTimeout is returned by Wait when no reply arrived in
	// time. The request may be retried.
	ErrCommunicationTimeout = errors.New("machine communication timeout")

	// ErrDuplicateFuture is returned by Send when a request with the same
	// correlation key is already pending. It indicates a programming error.
	ErrDuplicateFuture = errors.New("duplicate pending request")

	// ErrClosed is returned for requests pending when the engine closes.
	ErrClosed = errors.New("correlation engine closed")

	// ErrNoReceiver is returned when a message has no receiver address.
	ErrNoReceiver = errors.New("message has no receiver")
)

// RemoteError is the result of a request answered with an /error reply.
type RemoteError struct {
	Path        string
	Description string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Description)
}
