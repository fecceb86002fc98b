package machine

import "errors"

// Errors returned by the machine. Use errors.Is to check them.
var (
	// ErrMachine is a refused or failed machine operation. It is reported
	// to the caller and leaves the machine unchanged.
	ErrMachine = errors.New("machine error")

	// ErrFatal is a failure after which the drive must stay disabled until
	// an operator resets the machine.
	ErrFatal = errors.New("fatal machine error")

	// ErrUnknownKey is returned for keys outside every namespace or outside
	// the key table of the active mode.
	ErrUnknownKey = errors.New("unknown key")

	// ErrInvalidMode is returned for unknown operating mode names.
	ErrInvalidMode = errors.New("invalid operating mode")

	// ErrSlaveTimeout is reported when a slave heard nothing from its
	// master for longer than the slave timeout.
	ErrSlaveTimeout = errors.New("master timeout")
)
