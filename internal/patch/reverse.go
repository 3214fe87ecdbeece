package patch

import (
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
)

// Normalize returns op with a trailing "-" array segment in Path replaced
// by the index it designates when op is applied to before.
func Normalize(before *node.Node, op Operation) (Operation, error) {
	last, ok := op.Path.Last()
	if !ok || !last.IsAppend() {
		return op, nil
	}
	switch op.Op {
	case OpAdd, OpCopy, OpMove:
	default:
		return op, nil
	}

	target := before
	if op.Op == OpMove {
		target = before.Clone()
		if _, err := remove(target, op, op.From); err != nil {
			return op, err
		}
	}

	parent, err := Get(target, op.Path.Parent())
	if err != nil {
		return op, wrap(op, op.Path, err)
	}
	if !parent.IsArray() {
		return op, nil
	}

	concrete, err := op.Path.Parent().Combine(pointer.Index(parent.Len()))
	if err != nil {
		return op, err
	}
	op.Path = concrete
	return op, nil
}

// Reverse returns the operation that, applied to the result of applying op
// to before, reproduces before. before is not modified.
func Reverse(before *node.Node, op Operation) (Operation, error) {
	op, err := Normalize(before, op)
	if err != nil {
		return Operation{}, err
	}
	if op.Path.IsRoot() && op.Op != OpRemove && op.Op != OpTest {
		return Replace(pointer.Root(), before.Clone()), nil
	}

	switch op.Op {
	case OpAdd, OpCopy:
		return reverseInsert(before, op)

	case OpRemove, OpReplace:
		old, err := Get(before, op.Path)
		if err != nil {
			return Operation{}, wrap(op, op.Path, err)
		}
		if op.Op == OpRemove {
			return Add(op.Path, old.Clone()), nil
		}
		return Replace(op.Path, old.Clone()), nil

	case OpMove:
		if op.From.Equal(op.Path) {
			return op, nil
		}
		intermediate := before.Clone()
		if _, err := remove(intermediate, op, op.From); err != nil {
			return Operation{}, err
		}
		parent, err := Get(intermediate, op.Path.Parent())
		if err != nil {
			return Operation{}, wrap(op, op.Path, err)
		}
		last, _ := op.Path.Last()
		if parent.IsObject() && parent.Has(last.Token()) {
			// The move overwrote a value; restore the smallest subtree
			// containing both ends.
			anchor := op.From.Parent().CommonPrefix(op.Path.Parent())
			prior, err := Get(before, anchor)
			if err != nil {
				return Operation{}, wrap(op, anchor, err)
			}
			return Replace(anchor, prior.Clone()), nil
		}
		return Move(op.Path, op.From), nil
	}

	return Operation{}, &ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: ErrNoReverse.Error(), Err: ErrNoReverse}
}

func reverseInsert(before *node.Node, op Operation) (Operation, error) {
	parent, err := Get(before, op.Path.Parent())
	if err != nil {
		return Operation{}, wrap(op, op.Path, err)
	}
	last, _ := op.Path.Last()
	if parent.IsObject() {
		if old, ok := parent.Get(last.Token()); ok {
			return Replace(op.Path, old.Clone()), nil
		}
	}
	return Remove(op.Path), nil
}
