package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// document is the on-disk layout of a project file.
type document struct {
	Project *Project `yaml:"project"`
}

// Load reads and validates a project file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project file path: %w", err)
	}

	return Parse(data, filepath.Dir(abs))
}

// Parse decodes a project document. dir is used to resolve relative host
// paths. The document either has a top-level "project" key or is the
// project itself.
func Parse(data []byte, dir string) (*Project, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, ErrEmptyInput
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, ErrInvalidCommandSpec) {
			return nil, err
		}
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}

	p := doc.Project
	if p == nil {
		p = &Project{}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, NewParseError("", err.Error(), ErrInvalidYAML)
		}
	}

	p.dir = dir
	p.link()

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the struct tags of the project and all its documents.
func Validate(p *Project) error {
	if err := validate.Struct(p); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into a ParseError naming
// the first offending field.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return NewParseError("", err.Error(), ErrValidation)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}
	return NewParseError(validationErrors[0].Namespace(), strings.Join(messages, "; "), ErrValidation)
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("field '%s' is required but missing", e.Field())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", e.Field(), e.Param())
	case "min", "max":
		return fmt.Sprintf("field '%s' is out of range (%s %s)", e.Field(), e.Tag(), e.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", e.Field(), e.Tag())
	}
}
