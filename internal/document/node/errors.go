package node

import (
	"errors"
	"fmt"
)

// Node errors.
var (
	// ErrInvalidJSON indicates input that is not a single well-formed JSON value.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrIndexOutOfRange indicates an array position outside the array.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnsupportedValue indicates a Go value with no document representation.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// KindError reports an operation applied to the wrong kind of node.
type KindError struct {
	Expected Kind
	Actual   Kind
}

// Error implements the error interface.
func (e *KindError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}
