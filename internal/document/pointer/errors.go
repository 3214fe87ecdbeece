package pointer

import (
	"errors"
	"fmt"
)

// ErrMalformedPath indicates a path that cannot be parsed or resolved.
var ErrMalformedPath = errors.New("malformed path")

// MalformedPathError describes why a path was rejected.
type MalformedPathError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed path %q: %s", e.Path, e.Reason)
}

// Is reports whether target is ErrMalformedPath.
func (e *MalformedPathError) Is(target error) bool {
	return target == ErrMalformedPath
}
