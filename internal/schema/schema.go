// Package schema provides JSON Schema-style validation for entity documents
// and their components.
//
// A Schema is an explicit recursive description of the allowed shape of a
// value: type constraints, required properties, enums, ranges and
// combinators. Validator evaluates a node tree against it without reflection.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dshills/entitydoc/internal/document/pointer"
)

// Schema is one node of a component schema. Keyword fields use their JSON
// Schema names so definition files can be written by hand. A nil pointer
// or empty slice means the keyword is absent.
type Schema struct {
	ID          string     `json:"$id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Type        SchemaType `json:"type,omitempty"`

	// Default is what accessors return for an absent property. The
	// validator ignores it.
	Default any `json:"default,omitempty"`

	Enum  []any `json:"enum,omitempty"`
	Const any   `json:"const,omitempty"`

	// Objects.
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`

	// Arrays.
	Items       *Schema `json:"items,omitempty"`
	MinItems    *int    `json:"minItems,omitempty"`
	MaxItems    *int    `json:"maxItems,omitempty"`
	UniqueItems bool    `json:"uniqueItems,omitempty"`

	// Numbers.
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`
	MultipleOf       *float64 `json:"multipleOf,omitempty"`

	// Strings. Lengths count runes.
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// Combinators and references. Ref only resolves "#/$defs/<name>"
	// against the Defs of the root schema.
	AllOf []*Schema          `json:"allOf,omitempty"`
	AnyOf []*Schema          `json:"anyOf,omitempty"`
	OneOf []*Schema          `json:"oneOf,omitempty"`
	Not   *Schema            `json:"not,omitempty"`
	Ref   string             `json:"$ref,omitempty"`
	Defs  map[string]*Schema `json:"$defs,omitempty"`
}

// SchemaType is the "type" keyword: one type name, or a list of them
// meaning any of the listed types.
type SchemaType struct {
	Types []string
}

func (t *SchemaType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Types = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("schema type list: %w", err)
		}
		t.Types = list
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("schema type must be a name or a list of names: %w", err)
	}
	t.Types = []string{name}
	return nil
}

func (t SchemaType) MarshalJSON() ([]byte, error) {
	if len(t.Types) == 1 {
		return json.Marshal(t.Types[0])
	}
	return json.Marshal(t.Types)
}

// Is reports whether typ is one of the allowed types.
func (t SchemaType) Is(typ string) bool { return slices.Contains(t.Types, typ) }

// IsEmpty reports whether the keyword is absent.
func (t SchemaType) IsEmpty() bool { return len(t.Types) == 0 }

func (t SchemaType) String() string { return strings.Join(t.Types, " or ") }

// Parse decodes a schema written as JSON.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return &s, nil
}

// Canonical returns a stable encoding of s. Two schemas with the same
// constraints have the same canonical form.
func (s *Schema) Canonical() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

// SameAs reports whether s and other describe the same constraints.
func (s *Schema) SameAs(other *Schema) bool {
	a, errA := s.Canonical()
	b, errB := other.Canonical()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Property returns the schema that applies at path below s, following
// object properties and array items. Returns nil when no schema applies.
func (s *Schema) Property(path pointer.Path) *Schema {
	current := s
	for i := 0; i < path.Len() && current != nil; i++ {
		seg := path.At(i)
		if prop, ok := current.Properties[seg.Token()]; ok {
			current = prop
			continue
		}
		if _, isIndex := seg.Index(); isIndex && current.Items != nil {
			current = current.Items
			continue
		}
		return nil
	}
	return current
}

// IsRequired reports whether name is listed in Required.
func (s *Schema) IsRequired(name string) bool { return slices.Contains(s.Required, name) }

// AllowsAdditionalProperties reports whether members missing from
// Properties are accepted. An absent keyword allows them.
func (s *Schema) AllowsAdditionalProperties() bool {
	return s.AdditionalProperties == nil || *s.AdditionalProperties
}
