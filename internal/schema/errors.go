package schema

import (
	"fmt"
	"strings"

	"github.com/dshills/entitydoc/internal/document/node"
)

// Constraint keywords reported in validation errors.
const (
	ConstraintType        = "type"
	ConstraintRequired    = "required"
	ConstraintEnum        = "enum"
	ConstraintConst       = "const"
	ConstraintRange       = "range"
	ConstraintMultipleOf  = "multipleOf"
	ConstraintLength      = "length"
	ConstraintPattern     = "pattern"
	ConstraintItems       = "items"
	ConstraintUnique      = "uniqueItems"
	ConstraintAdditional  = "additionalProperties"
	ConstraintCombinator  = "combinator"
	ConstraintUnresolved  = "$ref"
	ConstraintInvalidRule = "schema"
)

// ValidationError is one failed constraint. Path is a JSON pointer
// relative to the validated value; "" is the value itself.
type ValidationError struct {
	Path       string
	Constraint string
	Message    string

	// Value is the offending node, nil for missing members.
	Value    *node.Node
	Expected string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors is the result of validating one value. Errors appear in
// the order the validator found them, so First is the shallowest failure of
// the first property visited.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Add records a failure at path.
func (e *ValidationErrors) Add(path, constraint, message string) {
	e.AddError(&ValidationError{Path: path, Constraint: constraint, Message: message})
}

func (e *ValidationErrors) AddError(err *ValidationError) { e.Errors = append(e.Errors, err) }
func (e *ValidationErrors) HasErrors() bool               { return len(e.Errors) > 0 }
func (e *ValidationErrors) Len() int                      { return len(e.Errors) }

// AsError returns e, or nil when nothing failed.
func (e *ValidationErrors) AsError() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// First returns the first failure, or nil.
func (e *ValidationErrors) First() *ValidationError {
	if e.HasErrors() {
		return e.Errors[0]
	}
	return nil
}

// At returns the failures reported exactly at path.
func (e *ValidationErrors) At(path string) []*ValidationError {
	return e.filter(func(p string) bool { return p == path })
}

// Under returns the failures at path or any pointer below it. "/cast"
// matches "/cast/0" but not "/castle".
func (e *ValidationErrors) Under(path string) []*ValidationError {
	return e.filter(func(p string) bool {
		rest, ok := strings.CutPrefix(p, path)
		return ok && (rest == "" || rest[0] == '/')
	})
}

func (e *ValidationErrors) filter(keep func(path string) bool) []*ValidationError {
	var out []*ValidationError
	for _, err := range e.Errors {
		if keep(err.Path) {
			out = append(out, err)
		}
	}
	return out
}

// NewTypeError reports a value of the wrong kind.
func NewTypeError(path string, expected string, actual *node.Node) *ValidationError {
	return &ValidationError{
		Path:       path,
		Constraint: ConstraintType,
		Message:    fmt.Sprintf("expected %s, got %s", expected, actual.Kind()),
		Value:      actual,
		Expected:   expected,
	}
}

// NewEnumError reports a value outside an enum.
func NewEnumError(path string, value *node.Node, allowed []any) *ValidationError {
	return &ValidationError{
		Path:       path,
		Constraint: ConstraintEnum,
		Message:    fmt.Sprintf("value %s is not one of allowed values: %v", value, allowed),
		Value:      value,
		Expected:   fmt.Sprintf("one of %v", allowed),
	}
}

// NewRangeError reports a number outside inclusive bounds; either bound may
// be nil.
func NewRangeError(path string, value *node.Node, min, max *float64) *ValidationError {
	var bounds []string
	if min != nil {
		bounds = append(bounds, fmt.Sprintf(">= %v", *min))
	}
	if max != nil {
		bounds = append(bounds, fmt.Sprintf("<= %v", *max))
	}
	expected := strings.Join(bounds, " and ")
	return &ValidationError{
		Path:       path,
		Constraint: ConstraintRange,
		Message:    fmt.Sprintf("value %s must be %s", value, expected),
		Value:      value,
		Expected:   expected,
	}
}

// NewPatternError reports a string the pattern does not match.
func NewPatternError(path string, value *node.Node, pattern string) *ValidationError {
	return &ValidationError{
		Path:       path,
		Constraint: ConstraintPattern,
		Message:    fmt.Sprintf("value does not match pattern: %s", pattern),
		Value:      value,
		Expected:   fmt.Sprintf("pattern: %s", pattern),
	}
}

// NewRequiredError reports a missing required member at path.
func NewRequiredError(path string) *ValidationError {
	return &ValidationError{
		Path:       path,
		Constraint: ConstraintRequired,
		Message:    "required field is missing",
	}
}

// NewUnknownPropertyError reports a member the schema does not allow.
func NewUnknownPropertyError(path string) *ValidationError {
	return &ValidationError{
		Path:       path,
		Constraint: ConstraintAdditional,
		Message:    "unknown property",
	}
}
