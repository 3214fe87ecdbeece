package node

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Parse decodes a JSON document. Object keys keep their source order;
// when a key repeats, the last value wins at the first position.
func Parse(data []byte) (*Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// MustParse is like Parse but panics on error. Intended for tests and literals.
func MustParse(s string) *Node {
	n, err := Parse([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("node: parse %q: %v", s, err))
	}
	return n
}

func fromResult(r gjson.Result) *Node {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		n := Number(r.Num)
		n.exact = integerLiteral(r.Raw, r.Num)
		return n
	case gjson.String:
		return String(r.Str)
	}

	if r.IsArray() {
		arr := NewArray()
		r.ForEach(func(_, value gjson.Result) bool {
			arr.items = append(arr.items, fromResult(value))
			return true
		})
		return arr
	}

	obj := NewObject()
	r.ForEach(func(key, value gjson.Result) bool {
		_ = obj.Set(key.Str, fromResult(value))
		return true
	})
	return obj
}

// MarshalJSON encodes n as compact JSON.
func (n *Node) MarshalJSON() ([]byte, error) {
	return appendJSON(make([]byte, 0, 64), n)
}

// UnmarshalJSON decodes data into n, replacing its contents.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

// MarshalIndent encodes n as indented JSON.
func MarshalIndent(n *Node) ([]byte, error) {
	compact, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(compact, &pretty.Options{Width: 80, Indent: "  "}), nil
}

// String returns the compact JSON form of n.
func (n *Node) String() string {
	data, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid: %v>", err)
	}
	return string(data)
}

func appendJSON(buf []byte, n *Node) ([]byte, error) {
	var err error
	switch n.Kind() {
	case KindNull:
		buf = append(buf, "null"...)
	case KindBool:
		buf = strconv.AppendBool(buf, n.b)
	case KindNumber:
		if n.exact != "" {
			buf = append(buf, n.exact...)
			break
		}
		buf, err = appendNumber(buf, n.num)
	case KindString:
		buf = appendString(buf, n.str)
	case KindArray:
		buf = append(buf, '[')
		for i, item := range n.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			if buf, err = appendJSON(buf, item); err != nil {
				return nil, err
			}
		}
		buf = append(buf, ']')
	case KindObject:
		buf = append(buf, '{')
		for i, k := range n.obj.keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, k)
			buf = append(buf, ':')
			if buf, err = appendJSON(buf, n.obj.values[k]); err != nil {
				return nil, err
			}
		}
		buf = append(buf, '}')
	}
	return buf, err
}

func appendNumber(buf []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	return strconv.AppendFloat(buf, f, format, -1, 64), nil
}

const hexDigits = "0123456789abcdef"

func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			buf = append(buf, '\\', c)
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}

// FromValue converts a Go value into a node. Maps are converted with their
// keys in lexical order. Values of other types go through encoding/json.
func FromValue(v any) (*Node, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case *Node:
		return val.Clone(), nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		n := Number(f)
		n.exact = integerLiteral(string(val), f)
		return n, nil
	case json.RawMessage:
		return Parse(val)
	case []any:
		arr := NewArray()
		for _, item := range val {
			child, err := FromValue(item)
			if err != nil {
				return nil, err
			}
			arr.items = append(arr.items, child)
		}
		return arr, nil
	case map[string]any:
		obj := NewObject()
		for _, k := range sortedKeys(val) {
			child, err := FromValue(val[k])
			if err != nil {
				return nil, err
			}
			_ = obj.Set(k, child)
		}
		return obj, nil
	case []string:
		arr := NewArray()
		for _, s := range val {
			arr.items = append(arr.items, String(s))
		}
		return arr, nil
	case map[string]string:
		obj := NewObject()
		for _, k := range sortedKeys(val) {
			_ = obj.Set(k, String(val[k]))
		}
		return obj, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		n := Number(float64(u))
		if u > maxExactInt {
			n.exact = strconv.FormatUint(u, 10)
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
		}
		return Number(f), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedValue, v, err)
	}
	return Parse(data)
}

// MustFromValue is like FromValue but panics on error.
func MustFromValue(v any) *Node {
	n, err := FromValue(v)
	if err != nil {
		panic(fmt.Sprintf("node: %v", err))
	}
	return n
}
