package config

import (
	"errors"
	"fmt"
)

// Common configuration errors.
var (
	// ErrConfigLoadFailed is returned when reading the configuration
	// file fails for a reason other than absence.
	ErrConfigLoadFailed = errors.New("failed to load configuration")

	// ErrConfigParseFailed is returned when the configuration cannot
	// be decoded into Settings.
	ErrConfigParseFailed = errors.New("failed to parse configuration")
)

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}
