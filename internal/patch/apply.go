package patch

import (
	"fmt"

	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
)

// Apply applies op to doc in place and returns the resulting root. The
// result differs from doc only when op replaces the whole document.
// On error doc may be partially modified; callers apply to a clone.
func Apply(doc *node.Node, op Operation) (result *node.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if err := op.Validate(); err != nil {
		return nil, err
	}

	switch op.Op {
	case OpAdd:
		return add(doc, op, op.Path, op.Value.Clone())
	case OpRemove:
		if _, err := remove(doc, op, op.Path); err != nil {
			return nil, err
		}
		return doc, nil
	case OpReplace:
		return replace(doc, op, op.Path, op.Value.Clone())
	case OpMove:
		if op.From.Equal(op.Path) {
			if _, err := Get(doc, op.From); err != nil {
				return nil, wrap(op, op.From, err)
			}
			return doc, nil
		}
		if op.Path.StartsWith(op.From) {
			return nil, &ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: "cannot move a value into one of its children"}
		}
		moved, err := remove(doc, op, op.From)
		if err != nil {
			return nil, err
		}
		return add(doc, op, op.Path, moved)
	case OpCopy:
		src, err := Get(doc, op.From)
		if err != nil {
			return nil, wrap(op, op.From, err)
		}
		return add(doc, op, op.Path, src.Clone())
	case OpTest:
		current, err := Get(doc, op.Path)
		if err != nil {
			return nil, wrap(op, op.Path, err)
		}
		if !node.Equal(current, op.Value) {
			return nil, &ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: "test failed: value differs"}
		}
		return doc, nil
	}
	return nil, &ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: "unknown operation"}
}

// Get resolves path against doc.
func Get(doc *node.Node, path pointer.Path) (*node.Node, error) {
	current := doc
	for i := 0; i < path.Len(); i++ {
		seg := path.At(i)
		switch current.Kind() {
		case node.KindObject:
			next, ok := current.Get(seg.Token())
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrPathNotFound, path.Slice(0, i+1).String())
			}
			current = next
		case node.KindArray:
			idx, ok := seg.Index()
			if !ok {
				return nil, fmt.Errorf("%w: %q is not an array index", ErrPathNotFound, seg.Token())
			}
			if idx >= current.Len() {
				return nil, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, idx, current.Len())
			}
			current = current.Index(idx)
		default:
			return nil, fmt.Errorf("%w: %q traverses a %s", ErrPathNotFound, path.Slice(0, i+1).String(), current.Kind())
		}
	}
	return current, nil
}

func add(doc *node.Node, op Operation, path pointer.Path, value *node.Node) (*node.Node, error) {
	if path.IsRoot() {
		return value, nil
	}
	parent, last, err := container(doc, op, path)
	if err != nil {
		return nil, err
	}

	switch parent.Kind() {
	case node.KindObject:
		_ = parent.Set(last.Token(), value)
	case node.KindArray:
		if last.IsAppend() {
			_ = parent.Append(value)
			break
		}
		idx, ok := last.Index()
		if !ok {
			return nil, &ApplicationError{Op: op.Op, Path: path.String(), Reason: fmt.Sprintf("%q is not an array index", last.Token())}
		}
		if err := parent.Insert(idx, value); err != nil {
			return nil, wrap(op, path, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, idx, parent.Len()))
		}
	}
	return doc, nil
}

func remove(doc *node.Node, op Operation, path pointer.Path) (*node.Node, error) {
	if path.IsRoot() {
		return nil, &ApplicationError{Op: op.Op, Path: "", Reason: "cannot remove the document root"}
	}
	parent, last, err := container(doc, op, path)
	if err != nil {
		return nil, err
	}

	switch parent.Kind() {
	case node.KindObject:
		removed, ok := parent.Get(last.Token())
		if !ok {
			return nil, wrap(op, path, fmt.Errorf("%w: %q", ErrPathNotFound, path.String()))
		}
		parent.Delete(last.Token())
		return removed, nil
	default:
		idx, ok := last.Index()
		if !ok {
			return nil, &ApplicationError{Op: op.Op, Path: path.String(), Reason: fmt.Sprintf("%q is not an array index", last.Token())}
		}
		removed, err := parent.RemoveAt(idx)
		if err != nil {
			return nil, wrap(op, path, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, idx, parent.Len()))
		}
		return removed, nil
	}
}

func replace(doc *node.Node, op Operation, path pointer.Path, value *node.Node) (*node.Node, error) {
	if path.IsRoot() {
		return value, nil
	}
	parent, last, err := container(doc, op, path)
	if err != nil {
		return nil, err
	}

	switch parent.Kind() {
	case node.KindObject:
		if !parent.Has(last.Token()) {
			return nil, wrap(op, path, fmt.Errorf("%w: %q", ErrPathNotFound, path.String()))
		}
		_ = parent.Set(last.Token(), value)
	default:
		idx, ok := last.Index()
		if !ok {
			return nil, &ApplicationError{Op: op.Op, Path: path.String(), Reason: fmt.Sprintf("%q is not an array index", last.Token())}
		}
		if err := parent.SetIndex(idx, value); err != nil {
			return nil, wrap(op, path, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, idx, parent.Len()))
		}
	}
	return doc, nil
}

// container resolves the parent of path, which must be an object or array.
func container(doc *node.Node, op Operation, path pointer.Path) (*node.Node, pointer.Segment, error) {
	parent, err := Get(doc, path.Parent())
	if err != nil {
		return nil, pointer.Segment{}, wrap(op, path, err)
	}
	if !parent.IsObject() && !parent.IsArray() {
		return nil, pointer.Segment{}, &ApplicationError{
			Op:     op.Op,
			Path:   path.String(),
			Reason: fmt.Sprintf("parent is a %s, not a container", parent.Kind()),
		}
	}
	last, _ := path.Last()
	return parent, last, nil
}

func wrap(op Operation, path pointer.Path, err error) error {
	return &ApplicationError{Op: op.Op, Path: path.String(), Reason: err.Error(), Err: err}
}
