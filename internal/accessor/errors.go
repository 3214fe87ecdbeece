package accessor

import (
	"errors"
	"fmt"
)

// Accessor errors.
var (
	// ErrInvalidated indicates an accessor whose component key went stale
	// after a structural change of its resource.
	ErrInvalidated = errors.New("component accessor invalidated")

	// ErrPropertyNotFound indicates a property that is neither set nor has a schema default.
	ErrPropertyNotFound = errors.New("property not found")
)

// TypeError is returned when a property does not hold the requested type.
type TypeError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error at %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}
