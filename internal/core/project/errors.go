package project

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input errors
	ErrEmptyInput  = errors.New("project document is empty")
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Structure errors
	ErrValidation         = errors.New("project document is invalid")
	ErrInvalidCommandSpec = errors.New("command must be a string, a list or a map of command groups")

	// Compose import errors
	ErrNoServices         = errors.New("compose spec must define at least one service")
	ErrUnsupportedFeature = errors.New("unsupported compose feature")
)

// ParseError wraps errors with context about where loading failed.
type ParseError struct {
	Field   string // e.g., "app.services.www.port"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
