package component

import (
	"errors"
	"fmt"
)

// Component errors.
var (
	// ErrNotFound indicates an unregistered component type or version.
	ErrNotFound = errors.New("component type not registered")

	// ErrDuplicateRegistration indicates a second, different schema for a registered type and version.
	ErrDuplicateRegistration = errors.New("component type already registered")

	// ErrInvalidDefinition indicates a definition that cannot be registered.
	ErrInvalidDefinition = errors.New("invalid component definition")

	// ErrInvalidComponent indicates a component that fails its schema.
	ErrInvalidComponent = errors.New("invalid component")

	// ErrInvalidToken indicates a malformed "<Type>@<version>" token.
	ErrInvalidToken = errors.New("invalid component type token")
)

// NotFoundError reports a lookup of an unregistered type and version.
type NotFoundError struct {
	Type    string
	Version int
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound, FormatToken(e.Type, e.Version))
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateRegistrationError reports a conflicting registration.
type DuplicateRegistrationError struct {
	Type    string
	Version int
}

// Error implements the error interface.
func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s with a different schema: %s", ErrDuplicateRegistration, FormatToken(e.Type, e.Version))
}

// Is reports whether target is ErrDuplicateRegistration.
func (e *DuplicateRegistrationError) Is(target error) bool { return target == ErrDuplicateRegistration }

// ValidationError reports a component that does not satisfy its schema.
// Err is usually a *schema.ValidationErrors naming the property and constraint.
type ValidationError struct {
	Type    string
	Version int
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %v", ErrInvalidComponent, FormatToken(e.Type, e.Version), e.Err)
}

// Unwrap returns the schema violation.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidComponent.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidComponent }

// TokenError reports a malformed type token.
type TokenError struct {
	Token  string
	Reason string
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidToken, e.Token, e.Reason)
}

// Is reports whether target is ErrInvalidToken.
func (e *TokenError) Is(target error) bool { return target == ErrInvalidToken }
