package entity

import (
	"errors"
	"fmt"

	"github.com/dshills/entitydoc/internal/component"
)

// Entity errors.
var (
	// ErrSchemaViolation indicates a patch that would break the document shape.
	ErrSchemaViolation = errors.New("entity document schema violation")

	// ErrComponentValidation indicates a patch that would leave a component invalid.
	ErrComponentValidation = errors.New("component validation failed")

	// ErrNothingToUndo indicates an empty undo history.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo indicates an empty redo history.
	ErrNothingToRedo = errors.New("nothing to redo")
)

// SchemaViolationError reports a candidate document that fails the entity schema.
type SchemaViolationError struct {
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSchemaViolation, e.Resource, e.Err)
}

// Unwrap returns the schema violation detail.
func (e *SchemaViolationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSchemaViolation.
func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// ComponentValidationError reports a touched component that fails its schema.
type ComponentValidationError struct {
	Key     component.Key
	Type    string
	Version int
	Err     error
}

// Error implements the error interface.
func (e *ComponentValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", ErrComponentValidation, e.Key, component.FormatToken(e.Type, e.Version), e.Err)
}

// Unwrap returns the underlying validation error.
func (e *ComponentValidationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrComponentValidation.
func (e *ComponentValidationError) Is(target error) bool { return target == ErrComponentValidation }
