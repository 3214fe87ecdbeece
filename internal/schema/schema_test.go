package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/entitydoc/internal/document/pointer"
)

func TestParse(t *testing.T) {
	s, err := Parse([]byte(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "default": "Untitled"},
			"lines": {"type": "array", "items": {"type": ["string", "null"]}}
		},
		"required": ["title"]
	}`))
	require.NoError(t, err)

	assert.True(t, s.Type.Is(TypeNameObject))
	assert.True(t, s.IsRequired("title"))
	assert.True(t, s.AllowsAdditionalProperties())
	assert.Equal(t, []string{"string", "null"}, s.Properties["lines"].Items.Type.Types)

	_, err = Parse([]byte(`{"type": 3}`))
	assert.Error(t, err)
}

func TestSchema_Property(t *testing.T) {
	s := Object().
		Property("title", String().Default("Untitled").Build()).
		Property("lines", Array().Items(Object().Property("text", String().Build()).Build()).Build()).
		Build()

	assert.Equal(t, "Untitled", s.Property(pointer.MustParse("/title")).Default)
	assert.NotNil(t, s.Property(pointer.MustParse("/lines/3/text")))
	assert.Nil(t, s.Property(pointer.MustParse("/missing")))
	assert.Same(t, s, s.Property(pointer.Root()))
}

func TestSchema_SameAs(t *testing.T) {
	a := Object().Property("x", Integer().Build()).Required("x").Build()
	b, err := Parse([]byte(`{"required":["x"],"properties":{"x":{"type":"integer"}},"type":"object"}`))
	require.NoError(t, err)
	c := Object().Property("x", String().Build()).Required("x").Build()

	assert.True(t, a.SameAs(b))
	assert.False(t, a.SameAs(c))
}

func TestSchemaType_MarshalRoundTrip(t *testing.T) {
	single, err := SchemaType{Types: []string{"string"}}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"string"`, string(single))

	multi, err := SchemaType{Types: []string{"string", "null"}}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `["string","null"]`, string(multi))
}
