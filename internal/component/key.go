// Package component describes typed components: the addresses of component
// instances inside entity documents, the "<Type>@<version>" token each
// component carries, and the registry of component schemas and prototypes.
package component

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reserved document fields.
const (
	// ComponentsField holds the ordered component array of an entity document.
	ComponentsField = "components"

	// TypeField holds the type token inside each component object.
	TypeField = "componentType"

	// EntityVersionField optionally records the document format version.
	EntityVersionField = "entityVersion"

	// EntityVersion is the current document format version.
	EntityVersion = 1

	// WholeComponent is the property path that addresses an entire component.
	WholeComponent = "/"
)

// Key identifies one component instance by resource and position.
// Positions shift when components are inserted or removed, so a Key must not
// be kept across a structural change of its resource.
type Key struct {
	Resource string
	Index    int
}

// String returns "resource#index".
func (k Key) String() string {
	return k.Resource + "#" + strconv.Itoa(k.Index)
}

// Change describes the effect of one committed patch on one component.
type Change struct {
	Key          Key
	Type         string
	Version      int
	PropertyPath string
	Operation    string
}

// IsStructural reports whether the change affected a whole component.
func (c Change) IsStructural() bool {
	return c.PropertyPath == WholeComponent
}

// String returns a short description of the change.
func (c Change) String() string {
	return fmt.Sprintf("%s %s %s %s", c.Operation, c.Key, FormatToken(c.Type, c.Version), c.PropertyPath)
}

var typeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// TokenPattern matches a well-formed type token.
const TokenPattern = `^[A-Za-z_][A-Za-z0-9_.]*@[0-9]+$`

// FormatToken returns the "<Type>@<version>" token.
func FormatToken(typ string, version int) string {
	return typ + "@" + strconv.Itoa(version)
}

// ParseToken splits a "<Type>@<version>" token.
func ParseToken(token string) (string, int, error) {
	typ, ver, ok := strings.Cut(token, "@")
	if !ok {
		return "", 0, &TokenError{Token: token, Reason: "missing '@'"}
	}
	if !ValidTypeName(typ) {
		return "", 0, &TokenError{Token: token, Reason: "invalid type name"}
	}
	version, err := strconv.Atoi(ver)
	if err != nil || version < 0 || ver[0] == '+' || ver[0] == '-' {
		return "", 0, &TokenError{Token: token, Reason: "version must be a non-negative integer"}
	}
	return typ, version, nil
}

// ValidTypeName reports whether name can be used as a component type.
func ValidTypeName(name string) bool {
	return typeNamePattern.MatchString(name)
}
