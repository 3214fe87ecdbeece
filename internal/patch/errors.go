package patch

import (
	"errors"
	"fmt"
)

// Patch errors.
var (
	// ErrPatchApplication indicates a structurally invalid operation.
	ErrPatchApplication = errors.New("patch application failed")

	// ErrPathNotFound indicates a path that does not resolve in the document.
	ErrPathNotFound = errors.New("path not found")

	// ErrIndexOutOfRange indicates an array index past the end of the array.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNoReverse indicates an operation that has no inverse, such as test.
	ErrNoReverse = errors.New("operation has no reverse")
)

// ApplicationError reports an operation that could not be applied.
type ApplicationError struct {
	Op     OpType
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPatchApplication.
func (e *ApplicationError) Is(target error) bool {
	return target == ErrPatchApplication
}
