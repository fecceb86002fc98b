package driver

import (
	"errors"
	"fmt"
)

// Errors returned by drivers. Use errors.Is to check them.
var (
	// ErrDriver wraps backend I/O failures (connection lost, exception
	// response, short read).
	ErrDriver = errors.New("driver error")

	// ErrAccess is matched by ReadOnlyError and WriteOnlyError.
	ErrAccess = errors.New("attribute access denied")

	// ErrNotConnected is returned by operations before Connect succeeded.
	ErrNotConnected = errors.New("driver not connected")

	// ErrConnectFailed is returned when every connect attempt failed.
	// The caller cannot operate the drive and should treat it as fatal.
	ErrConnectFailed = errors.New("driver connect failed")

	// ErrUnknownType is returned by the registry for unregistered types.
	ErrUnknownType = errors.New("unknown driver type")

	// ErrSubkeyRequired is returned when writing a whole composite section.
	ErrSubkeyRequired = errors.New("composite key requires a subkey")
)

// ReadOnlyError is returned when writing a read-only attribute.
type ReadOnlyError struct {
	Key string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s is read-only", e.Key)
}

// Is makes errors.Is(err, ErrAccess) match.
func (e *ReadOnlyError) Is(target error) bool { return target == ErrAccess }

// WriteOnlyError is returned when reading a write-only attribute.
type WriteOnlyError struct {
	Key string
}

func (e *WriteOnlyError) Error() string {
	return fmt.Sprintf("%s is write-only", e.Key)
}

// Is makes errors.Is(err, ErrAccess) match.
func (e *WriteOnlyError) Is(target error) bool { return target == ErrAccess }
