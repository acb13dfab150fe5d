package tools

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSchema is matched by every SchemaError
	ErrSchema = errors.New("invalid tool schema")
	// ErrInvalidInput is returned when tool parameters do not satisfy the schema,
	// or when a handler rejects a semantically invalid value.
	ErrInvalidInput = errors.New("invalid tool input")
)

// SchemaError is returned when a tool declaration is invalid.
type SchemaError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid tool schema %q: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid tool schema %q: %s: %s", e.Tool, e.Field, e.Reason)
}

// Is allows errors.Is(err, ErrSchema)
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErr(tool, field, format string, args ...any) error {
	return &SchemaError{
		Tool:   tool,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// InvalidInputf returns an error that wraps ErrInvalidInput,
// handlers use it to report semantic validation failures.
func InvalidInputf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}
