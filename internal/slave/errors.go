package slave

import "errors"

// Errors returned by the slave package.
var (
	// ErrSlave is a recoverable slave machine failure.
	ErrSlave = errors.New("slave machine error")

	// ErrFatalSlave is a failure that trips the shared fatal state and
	// disables every slave.
	ErrFatalSlave = errors.New("fatal slave machine error")

	// ErrInvalidSlave is returned for malformed slave descriptors.
	ErrInvalidSlave = errors.New("invalid slave")

	// ErrNotFound is returned when no slave matches an id.
	ErrNotFound = errors.New("slave not found")

	// ErrStopped is returned for requests to a stopped slave machine.
	ErrStopped = errors.New("slave machine stopped")

	// ErrUnknownMethod is returned by the bridge for unsupported driver methods.
	ErrUnknownMethod = errors.New("unknown driver method")

	// ErrSerialMismatch is returned when a slave reports another serial
	// number than the one registered.
	ErrSerialMismatch = errors.New("slave serial number mismatch")
)
