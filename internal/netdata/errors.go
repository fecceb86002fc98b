package netdata

import "errors"

// Domain-specific errors for netdata maps and values.
var (
	// ErrInvalidMap is returned when a map definition is inconsistent.
	ErrInvalidMap = errors.New("invalid netdata map")

	// ErrUnknownKey is returned when a key is not part of the map.
	ErrUnknownKey = errors.New("unknown netdata key")

	// ErrInvalidValue is returned when a value cannot be converted to a field type.
	ErrInvalidValue = errors.New("invalid netdata value")

	// ErrShortBlock is returned when fewer than BlockSize bytes are decoded.
	ErrShortBlock = errors.New("short netdata block")
)
