// Package node provides the tree value that entity documents are made of.
//
// A Node is one of null, boolean, number, string, array or object. Objects
// keep their keys in insertion order so a document round-trips through
// Parse and MarshalJSON without reordering. Equality between objects ignores
// key order.
package node

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Node holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Node is a single value in a document tree.
// The zero value and a nil *Node are both null.
type Node struct {
	kind  Kind
	b     bool
	num   float64
	str   string

	// exact is the decimal text of an integer too large for num to hold
	// exactly. It is empty for every other number.
	exact string
	items []*Node
	obj   *object
}

// object is an insertion-ordered string map.
type object struct {
	keys   []string
	values map[string]*Node
}

func newObjectMap(capacity int) *object {
	return &object{
		keys:   make([]string, 0, capacity),
		values: make(map[string]*Node, capacity),
	}
}

// Null returns a new null node.
func Null() *Node { return &Node{} }

// Bool returns a new boolean node.
func Bool(b bool) *Node { return &Node{kind: KindBool, b: b} }

// Number returns a new number node.
func Number(f float64) *Node { return &Node{kind: KindNumber, num: f} }

// Int returns a new number node holding an integer.
func Int(i int64) *Node {
	n := &Node{kind: KindNumber, num: float64(i)}
	if i > maxExactInt || i < -maxExactInt {
		n.exact = strconv.FormatInt(i, 10)
	}
	return n
}

// maxExactInt bounds the integers float64 represents without rounding.
const maxExactInt = 1 << 53

// integerLiteral returns raw when it is a JSON integer literal whose value
// float64 rounds, and "" otherwise.
func integerLiteral(raw string, f float64) string {
	if math.Abs(f) < maxExactInt {
		return ""
	}
	digits := strings.TrimPrefix(raw, "-")
	if digits == "" {
		return ""
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return ""
		}
	}
	return raw
}

// String returns a new string node.
func String(s string) *Node { return &Node{kind: KindString, str: s} }

// NewArray returns a new array node holding items.
func NewArray(items ...*Node) *Node {
	n := &Node{kind: KindArray, items: make([]*Node, 0, len(items))}
	for _, item := range items {
		n.items = append(n.items, orNull(item))
	}
	return n
}

// NewObject returns a new empty object node.
func NewObject() *Node {
	return &Node{kind: KindObject, obj: newObjectMap(0)}
}

// Kind returns the variant held by n.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// IsNull reports whether n is null.
func (n *Node) IsNull() bool { return n.Kind() == KindNull }

// IsArray reports whether n is an array.
func (n *Node) IsArray() bool { return n.Kind() == KindArray }

// IsObject reports whether n is an object.
func (n *Node) IsObject() bool { return n.Kind() == KindObject }

// AsBool returns the boolean value of n.
func (n *Node) AsBool() (bool, bool) {
	if n.Kind() != KindBool {
		return false, false
	}
	return n.b, true
}

// AsNumber returns the numeric value of n.
func (n *Node) AsNumber() (float64, bool) {
	if n.Kind() != KindNumber {
		return 0, false
	}
	return n.num, true
}

// AsInt returns the value of n when it is an integral number.
func (n *Node) AsInt() (int64, bool) {
	if n.Kind() == KindNumber && n.exact != "" {
		i, err := strconv.ParseInt(n.exact, 10, 64)
		return i, err == nil
	}
	if !n.IsInteger() {
		return 0, false
	}
	return int64(n.num), true
}

// IsInteger reports whether n is a number without a fractional part.
func (n *Node) IsInteger() bool {
	if n.Kind() != KindNumber {
		return false
	}
	if n.exact != "" {
		return true
	}
	return !math.IsInf(n.num, 0) && n.num == math.Trunc(n.num) && math.Abs(n.num) < 1<<63
}

// AsString returns the string value of n.
func (n *Node) AsString() (string, bool) {
	if n.Kind() != KindString {
		return "", false
	}
	return n.str, true
}

// Len returns the number of elements of an array or entries of an object.
func (n *Node) Len() int {
	switch n.Kind() {
	case KindArray:
		return len(n.items)
	case KindObject:
		return len(n.obj.keys)
	default:
		return 0
	}
}

// Items returns the elements of an array. The slice is shared with n.
func (n *Node) Items() []*Node {
	if n.Kind() != KindArray {
		return nil
	}
	return n.items
}

// Index returns the element at i, or nil when n is not an array or i is out of range.
func (n *Node) Index(i int) *Node {
	if n.Kind() != KindArray || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Append adds v to the end of an array.
func (n *Node) Append(v *Node) error {
	if n.Kind() != KindArray {
		return fmt.Errorf("append: %w", &KindError{Expected: KindArray, Actual: n.Kind()})
	}
	n.items = append(n.items, orNull(v))
	return nil
}

// Insert places v at position i of an array, shifting later elements up.
// i may equal Len to append.
func (n *Node) Insert(i int, v *Node) error {
	if n.Kind() != KindArray {
		return fmt.Errorf("insert: %w", &KindError{Expected: KindArray, Actual: n.Kind()})
	}
	if i < 0 || i > len(n.items) {
		return fmt.Errorf("insert at %d: %w", i, ErrIndexOutOfRange)
	}
	n.items = append(n.items, nil)
	copy(n.items[i+1:], n.items[i:])
	n.items[i] = orNull(v)
	return nil
}

// SetIndex replaces the element at position i of an array.
func (n *Node) SetIndex(i int, v *Node) error {
	if n.Kind() != KindArray {
		return fmt.Errorf("set index: %w", &KindError{Expected: KindArray, Actual: n.Kind()})
	}
	if i < 0 || i >= len(n.items) {
		return fmt.Errorf("set index %d: %w", i, ErrIndexOutOfRange)
	}
	n.items[i] = orNull(v)
	return nil
}

// RemoveAt deletes and returns the element at position i of an array.
func (n *Node) RemoveAt(i int) (*Node, error) {
	if n.Kind() != KindArray {
		return nil, fmt.Errorf("remove: %w", &KindError{Expected: KindArray, Actual: n.Kind()})
	}
	if i < 0 || i >= len(n.items) {
		return nil, fmt.Errorf("remove index %d: %w", i, ErrIndexOutOfRange)
	}
	removed := n.items[i]
	copy(n.items[i:], n.items[i+1:])
	n.items[len(n.items)-1] = nil
	n.items = n.items[:len(n.items)-1]
	return removed, nil
}

// Keys returns the keys of an object in insertion order.
func (n *Node) Keys() []string {
	if n.Kind() != KindObject {
		return nil
	}
	keys := make([]string, len(n.obj.keys))
	copy(keys, n.obj.keys)
	return keys
}

// Get returns the value stored under key in an object.
func (n *Node) Get(key string) (*Node, bool) {
	if n.Kind() != KindObject {
		return nil, false
	}
	v, ok := n.obj.values[key]
	return v, ok
}

// Has reports whether an object holds key.
func (n *Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Set stores v under key in an object. An existing key keeps its position.
func (n *Node) Set(key string, v *Node) error {
	if n.Kind() != KindObject {
		return fmt.Errorf("set %q: %w", key, &KindError{Expected: KindObject, Actual: n.Kind()})
	}
	if _, exists := n.obj.values[key]; !exists {
		n.obj.keys = append(n.obj.keys, key)
	}
	n.obj.values[key] = orNull(v)
	return nil
}

// Delete removes key from an object and reports whether it was present.
func (n *Node) Delete(key string) bool {
	if n.Kind() != KindObject {
		return false
	}
	if _, exists := n.obj.values[key]; !exists {
		return false
	}
	delete(n.obj.values, key)
	for i, k := range n.obj.keys {
		if k == key {
			n.obj.keys = append(n.obj.keys[:i], n.obj.keys[i+1:]...)
			break
		}
	}
	return true
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return Null()
	}
	c := &Node{kind: n.kind, b: n.b, num: n.num, str: n.str, exact: n.exact}
	switch n.kind {
	case KindArray:
		c.items = make([]*Node, len(n.items))
		for i, item := range n.items {
			c.items[i] = item.Clone()
		}
	case KindObject:
		c.obj = newObjectMap(len(n.obj.keys))
		for _, k := range n.obj.keys {
			c.obj.keys = append(c.obj.keys, k)
			c.obj.values[k] = n.obj.values[k].Clone()
		}
	}
	return c
}

// Equal reports whether n and other are structurally equal.
func (n *Node) Equal(other *Node) bool {
	return Equal(n, other)
}

// Equal reports whether a and b are structurally equal.
// Object key order is not significant; array order is.
func Equal(a, b *Node) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		if a.exact == "" && b.exact == "" {
			return a.num == b.num
		}
		return a.numberText() == b.numberText()
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj.keys) != len(b.obj.keys) {
			return false
		}
		for k, av := range a.obj.values {
			bv, ok := b.obj.values[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Value converts n into plain Go values: nil, bool, float64, string,
// []any and map[string]any. Integers beyond 2^53 come back rounded; use
// AsInt or MarshalJSON to keep their digits.
func (n *Node) Value() any {
	switch n.Kind() {
	case KindBool:
		return n.b
	case KindNumber:
		return n.num
	case KindString:
		return n.str
	case KindArray:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.Value()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.obj.keys))
		for _, k := range n.obj.keys {
			out[k] = n.obj.values[k].Value()
		}
		return out
	default:
		return nil
	}
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orNull(n *Node) *Node {
	if n == nil {
		return Null()
	}
	return n
}

func (n *Node) numberText() string {
	if n.exact != "" {
		return n.exact
	}
	return strconv.FormatFloat(n.num, 'f', -1, 64)
}
