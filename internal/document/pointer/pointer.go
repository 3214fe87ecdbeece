// Package pointer implements slash-delimited paths into a document tree.
//
// Paths use the JSON Pointer syntax: "/components/0/sceneTitle". The empty
// string addresses the whole document. Within a token "~1" stands for "/"
// and "~0" for "~". Empty tokens are rejected.
package pointer

import (
	"strconv"
	"strings"
)

// AppendToken is the array segment that addresses the position after the last element.
const AppendToken = "-"

// Segment is one step of a path: an object key or an array index.
// Which one applies depends on the container the segment is resolved against.
type Segment struct {
	token string
	index int
}

// Key returns a segment naming an object key.
func Key(k string) Segment {
	return Segment{token: k, index: parseIndex(k)}
}

// Index returns a segment naming an array position.
func Index(i int) Segment {
	if i < 0 {
		return Segment{token: strconv.Itoa(i), index: -1}
	}
	return Segment{token: strconv.Itoa(i), index: i}
}

// Token returns the unescaped text of the segment.
func (s Segment) Token() string { return s.token }

// Index returns the array position named by the segment.
func (s Segment) Index() (int, bool) {
	return s.index, s.index >= 0
}

// IsAppend reports whether the segment is the "-" end-of-array marker.
func (s Segment) IsAppend() bool { return s.token == AppendToken }

// String returns the escaped token.
func (s Segment) String() string { return escape(s.token) }

// parseIndex returns the array index a token names, or -1. Leading zeros are
// not indices.
func parseIndex(tok string) int {
	if tok == "" || len(tok) > 18 {
		return -1
	}
	if len(tok) > 1 && tok[0] == '0' {
		return -1
	}
	n := 0
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Path is an immutable sequence of segments.
type Path struct {
	segments []Segment
}

// Root returns the path that addresses the whole document.
func Root() Path { return Path{} }

// New builds a path from segments.
func New(segments ...Segment) (Path, error) {
	p := Root()
	for _, seg := range segments {
		var err error
		if p, err = p.Combine(seg); err != nil {
			return Path{}, err
		}
	}
	return p, nil
}

// Parse reads a path in pointer syntax.
func Parse(s string) (Path, error) {
	if s == "" {
		return Root(), nil
	}
	if s[0] != '/' {
		return Path{}, &MalformedPathError{Path: s, Reason: "must start with '/'"}
	}

	raw := strings.Split(s[1:], "/")
	segments := make([]Segment, 0, len(raw))
	for i, tok := range raw {
		if tok == "" {
			return Path{}, &MalformedPathError{Path: s, Reason: "empty segment at position " + strconv.Itoa(i)}
		}
		unescaped, ok := unescape(tok)
		if !ok {
			return Path{}, &MalformedPathError{Path: s, Reason: "invalid escape in segment " + strconv.Quote(tok)}
		}
		segments = append(segments, Key(unescaped))
	}
	return Path{segments: segments}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// IsRoot reports whether p addresses the whole document.
func (p Path) IsRoot() bool { return len(p.segments) == 0 }

// At returns the segment at position i.
func (p Path) At(i int) Segment { return p.segments[i] }

// Segments returns a copy of the segments.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// Last returns the final segment.
func (p Path) Last() (Segment, bool) {
	if p.IsRoot() {
		return Segment{}, false
	}
	return p.segments[len(p.segments)-1], true
}

// Parent returns p without its final segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Slice returns the segments in [from, to) as a path.
func (p Path) Slice(from, to int) Path {
	return Path{segments: p.segments[from:to]}
}

// Equal reports whether p and other have the same segments.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i].token != other.segments[i].token {
			return false
		}
	}
	return true
}

// StartsWith reports whether prefix is p or an ancestor of p.
func (p Path) StartsWith(prefix Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	return p.Slice(0, len(prefix.segments)).Equal(prefix)
}

// TrimPrefix returns the part of p below prefix.
func (p Path) TrimPrefix(prefix Path) (Path, bool) {
	if !p.StartsWith(prefix) {
		return p, false
	}
	return p.Slice(len(prefix.segments), len(p.segments)), true
}

// Combine returns a new path with seg appended.
func (p Path) Combine(seg Segment) (Path, error) {
	if seg.token == "" {
		return Path{}, &MalformedPathError{Path: p.String() + "/", Reason: "empty segment"}
	}
	if strings.HasPrefix(seg.token, "-") && seg.token != AppendToken {
		if _, err := strconv.Atoi(seg.token); err == nil {
			return Path{}, &MalformedPathError{Path: p.String() + "/" + seg.String(), Reason: "negative index"}
		}
	}
	segments := make([]Segment, len(p.segments), len(p.segments)+1)
	copy(segments, p.segments)
	return Path{segments: append(segments, seg)}, nil
}

// Join returns p followed by the segments of other.
func (p Path) Join(other Path) Path {
	segments := make([]Segment, 0, len(p.segments)+len(other.segments))
	segments = append(segments, p.segments...)
	return Path{segments: append(segments, other.segments...)}
}

// CommonPrefix returns the longest path that both p and other start with.
func (p Path) CommonPrefix(other Path) Path {
	n := 0
	for n < len(p.segments) && n < len(other.segments) && p.segments[n].token == other.segments[n].token {
		n++
	}
	return p.Slice(0, n)
}

// String renders p in pointer syntax.
func (p Path) String() string {
	if p.IsRoot() {
		return ""
	}
	var b strings.Builder
	for _, seg := range p.segments {
		b.WriteByte('/')
		b.WriteString(escape(seg.token))
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

var escaper = strings.NewReplacer("~", "~0", "/", "~1")

func escape(tok string) string {
	if !strings.ContainsAny(tok, "~/") {
		return tok
	}
	return escaper.Replace(tok)
}

func unescape(tok string) (string, bool) {
	if !strings.Contains(tok, "~") {
		return tok, true
	}
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		if tok[i] != '~' {
			b.WriteByte(tok[i])
			continue
		}
		if i+1 >= len(tok) {
			return "", false
		}
		switch tok[i+1] {
		case '0':
			b.WriteByte('~')
		case '1':
			b.WriteByte('/')
		default:
			return "", false
		}
		i++
	}
	return b.String(), true
}
