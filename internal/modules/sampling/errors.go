package sampling

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the configuration source does not exist.
var ErrNotFound = errors.New("sampling config not found")

// ParseError indicates the configuration source could not be decoded as JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse sampling config: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SchemaError indicates a required key is absent or has the wrong shape.
type SchemaError struct {
	Key    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid sampling config schema: %s: %s", e.Key, e.Reason)
}

// ValidationError indicates a field is present but semantically invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sampling config value: %s: %s", e.Field, e.Reason)
}
