// Package patch implements RFC 6902 patch operations over document trees:
// applying a single operation and computing the operation that undoes it.
package patch

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
)

// OpType names a patch operation.
type OpType string

const (
	OpAdd     OpType = "add"
	OpRemove  OpType = "remove"
	OpReplace OpType = "replace"
	OpMove    OpType = "move"
	OpCopy    OpType = "copy"
	OpTest    OpType = "test"
)

// Valid reports whether t is a known operation.
func (t OpType) Valid() bool {
	switch t {
	case OpAdd, OpRemove, OpReplace, OpMove, OpCopy, OpTest:
		return true
	}
	return false
}

// Operation is a single patch instruction.
// Value is used by add, replace and test. From is used by move and copy.
type Operation struct {
	Op    OpType
	Path  pointer.Path
	From  pointer.Path
	Value *node.Node
}

// Add returns an add operation.
func Add(path pointer.Path, value *node.Node) Operation {
	return Operation{Op: OpAdd, Path: path, Value: value}
}

// Remove returns a remove operation.
func Remove(path pointer.Path) Operation {
	return Operation{Op: OpRemove, Path: path}
}

// Replace returns a replace operation.
func Replace(path pointer.Path, value *node.Node) Operation {
	return Operation{Op: OpReplace, Path: path, Value: value}
}

// Move returns a move operation.
func Move(from, path pointer.Path) Operation {
	return Operation{Op: OpMove, From: from, Path: path}
}

// Copy returns a copy operation.
func Copy(from, path pointer.Path) Operation {
	return Operation{Op: OpCopy, From: from, Path: path}
}

// Test returns a test operation.
func Test(path pointer.Path, value *node.Node) Operation {
	return Operation{Op: OpTest, Path: path, Value: value}
}

// Validate checks that o carries the fields its operation needs.
func (o Operation) Validate() error {
	if !o.Op.Valid() {
		return &ApplicationError{Op: o.Op, Path: o.Path.String(), Reason: fmt.Sprintf("unknown operation %q", o.Op)}
	}
	switch o.Op {
	case OpAdd, OpReplace, OpTest:
		if o.Value == nil {
			return &ApplicationError{Op: o.Op, Path: o.Path.String(), Reason: "missing value"}
		}
	}
	return nil
}

// String returns a short description such as "replace /components/0/title".
func (o Operation) String() string {
	switch o.Op {
	case OpMove, OpCopy:
		return fmt.Sprintf("%s %s -> %s", o.Op, o.From, o.Path)
	default:
		return fmt.Sprintf("%s %s", o.Op, o.Path)
	}
}

// Equal reports whether o and other describe the same operation.
func (o Operation) Equal(other Operation) bool {
	if o.Op != other.Op || !o.Path.Equal(other.Path) || !o.From.Equal(other.From) {
		return false
	}
	if (o.Value == nil) != (other.Value == nil) {
		return false
	}
	return o.Value == nil || node.Equal(o.Value, other.Value)
}

type wireOperation struct {
	Op    OpType          `json:"op"`
	Path  string          `json:"path"`
	From  *string         `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes o in RFC 6902 wire form.
func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Op: o.Op, Path: o.Path.String()}
	if o.Op == OpMove || o.Op == OpCopy {
		from := o.From.String()
		w.From = &from
	}
	if o.Value != nil {
		raw, err := o.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.Value = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes o from RFC 6902 wire form.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode operation: %w", err)
	}

	path, err := pointer.Parse(w.Path)
	if err != nil {
		return err
	}
	op := Operation{Op: w.Op, Path: path}

	if w.From != nil {
		if op.From, err = pointer.Parse(*w.From); err != nil {
			return err
		}
	} else if w.Op == OpMove || w.Op == OpCopy {
		return &ApplicationError{Op: w.Op, Path: w.Path, Reason: "missing from"}
	}

	if len(w.Value) > 0 {
		if op.Value, err = node.Parse(w.Value); err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
	}

	if err := op.Validate(); err != nil {
		return err
	}
	*o = op
	return nil
}

// ParseOperations decodes a JSON array of operations.
func ParseOperations(data []byte) ([]Operation, error) {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}
