package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrModelMismatch is returned when a payload's embedded model name does
	// not match the type it is being deserialized into. The manager treats
	// it as corruption (miss + delete); direct codec users can detect
	// cross-model contamination through it.
	ErrModelMismatch = errors.New("cache: payload model does not match target type")

	// ErrUnknownBackend is returned when a Config names a backend that was
	// never registered.
	ErrUnknownBackend = errors.New("cache: unknown backend")

	// ErrPayloadCorrupt is returned by the codec when a payload cannot be
	// decoded into the target type.
	ErrPayloadCorrupt = errors.New("cache: payload corrupt")

	// ErrInvalidResultType is returned by the generic helpers when a
	// coalesced computation produced a value of an unexpected type.
	ErrInvalidResultType = errors.New("cache: unexpected result type")
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// corruptf wraps a decode failure so callers can match ErrPayloadCorrupt.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPayloadCorrupt, fmt.Sprintf(format, args...))
}
