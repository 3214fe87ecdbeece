package component

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/schema"
)

func sceneSchema() *schema.Schema {
	return schema.Object().
		Property(TypeField, schema.String().Build()).
		Property("sceneTitle", schema.String().Build()).
		Required("sceneTitle").
		Build()
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		token   string
		typ     string
		version int
		ok      bool
	}{
		{"Scene@1", "Scene", 1, true},
		{"Screenplay.Line@12", "Screenplay.Line", 12, true},
		{"Scene@0", "Scene", 0, true},
		{"Scene", "", 0, false},
		{"Scene@", "", 0, false},
		{"Scene@-1", "", 0, false},
		{"Scene@+1", "", 0, false},
		{"Scene@x", "", 0, false},
		{"1Scene@1", "", 0, false},
		{"@1", "", 0, false},
	}
	for _, tt := range tests {
		typ, version, err := ParseToken(tt.token)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidToken, tt.token)
			continue
		}
		require.NoError(t, err, tt.token)
		assert.Equal(t, tt.typ, typ)
		assert.Equal(t, tt.version, version)
		assert.Equal(t, tt.token, FormatToken(typ, version))
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Scene", 1, sceneSchema(), node.MustParse(`{"sceneTitle":"Untitled"}`)))

	s, err := r.Resolve("Scene", 1)
	require.NoError(t, err)
	assert.True(t, s.SameAs(sceneSchema()))

	_, err = r.Resolve("Scene", 2)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Scene", nf.Type)
	assert.Equal(t, 2, nf.Version)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	proto := node.MustParse(`{"sceneTitle":"Untitled"}`)
	require.NoError(t, r.Register("Scene", 1, sceneSchema(), proto))
	require.NoError(t, r.Register("Scene", 1, sceneSchema(), proto))

	different := schema.Object().Property("sceneTitle", schema.Integer().Build()).Build()
	err := r.Register("Scene", 1, different, node.MustParse(`{"sceneTitle":1}`))
	var dup *DuplicateRegistrationError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	s, _ := r.Resolve("Scene", 1)
	assert.True(t, s.SameAs(sceneSchema()), "a rejected registration must not replace the schema")
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	r := NewRegistry()

	err := r.Register("Scene", 1, sceneSchema(), node.MustParse(`{}`))
	assert.ErrorIs(t, err, ErrInvalidDefinition, "prototype is missing a required property")
	assert.ErrorIs(t, err, ErrInvalidComponent)

	assert.ErrorIs(t, r.Register("bad name", 1, sceneSchema(), nil), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register("Scene", -1, sceneSchema(), nil), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register("Scene", 1, nil, nil), ErrInvalidDefinition)
	assert.ErrorIs(t, r.Register("Scene", 1, sceneSchema(), node.NewArray()), ErrInvalidDefinition)
	assert.False(t, r.Has("Scene", 1))
}

func TestRegistry_PrototypeIsStampedAndCopied(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Scene", 1, sceneSchema(), node.MustParse(`{"sceneTitle":"Untitled"}`)))

	proto, err := r.Prototype("Scene", 1)
	require.NoError(t, err)
	assert.Equal(t, `{"componentType":"Scene@1","sceneTitle":"Untitled"}`, proto.String())

	require.NoError(t, proto.Set("sceneTitle", node.String("changed")))
	again, _ := r.Prototype("Scene", 1)
	assert.Equal(t, `{"componentType":"Scene@1","sceneTitle":"Untitled"}`, again.String())
}

func TestRegistry_ValidateComponent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("Scene", 1, sceneSchema(), node.MustParse(`{"sceneTitle":"Untitled"}`)))

	assert.NoError(t, r.ValidateComponent(node.MustParse(`{"componentType":"Scene@1","sceneTitle":"Intro"}`), "Scene", 1))

	err := r.ValidateComponent(node.MustParse(`{"componentType":"Scene@1","sceneTitle":42}`), "Scene", 1)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	var details *schema.ValidationErrors
	require.True(t, errors.As(err, &details))
	assert.Equal(t, "/sceneTitle", details.First().Path)
	assert.Equal(t, schema.ConstraintType, details.First().Constraint)

	err = r.ValidateComponent(node.MustParse(`{"componentType":"Line@1","sceneTitle":"x"}`), "Scene", 1)
	require.ErrorAs(t, err, &details)
	assert.Equal(t, "/componentType", details.First().Path)

	assert.ErrorIs(t, r.ValidateComponent(node.MustParse(`{}`), "Line", 1), ErrNotFound)
}

func TestRegistry_Queries(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Definition{Type: "Scene", Version: 1, Tags: []string{"screenplay"}, Schema: sceneSchema(), Prototype: node.MustParse(`{"sceneTitle":""}`)})
	r.MustRegister(Definition{Type: "Scene", Version: 2, Tags: []string{"screenplay"}, Schema: sceneSchema(), Prototype: node.MustParse(`{"sceneTitle":""}`)})
	r.MustRegister(Definition{Type: "Note", Version: 1, Schema: schema.Object().Build()})

	latest, err := r.Latest("Scene")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	_, err = r.Latest("Missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"Note", "Scene"}, r.Types())

	tokens := func(defs []*Definition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Token())
		}
		return out
	}
	assert.Equal(t, []string{"Note@1", "Scene@1", "Scene@2"}, tokens(r.All()))
	assert.Equal(t, []string{"Scene@1", "Scene@2"}, tokens(r.ByTag("screenplay")))
	assert.Empty(t, r.ByTag("missing"))
}

func TestLoadDefinitions(t *testing.T) {
	fsys := fstest.MapFS{
		"defs/scene.json": {Data: []byte(`{
			"type": "Scene", "version": 1, "tags": ["screenplay"],
			"schema": {"type": "object", "properties": {"sceneTitle": {"type": "string"}}, "required": ["sceneTitle"]},
			"prototype": {"sceneTitle": "Untitled", "act": 1}
		}`)},
		"defs/line.yaml": {Data: []byte(`
type: Line
version: 2
tags: [screenplay, dialogue]
schema:
  type: object
  properties:
    text: {type: string}
prototype:
  text: ""
`)},
		"defs/note.toml": {Data: []byte(`
type = "Note"
version = 1

[schema]
type = "object"
`)},
		"defs/readme.md": {Data: []byte(`ignored`)},
	}

	r := NewRegistry()
	n, err := r.Load(fsys, "defs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	scene, err := r.Definition("Scene", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"screenplay"}, scene.Tags)
	assert.Equal(t, []string{"componentType", "sceneTitle", "act"}, scene.Prototype.Keys())

	line, err := r.Definition("Line", 2)
	require.NoError(t, err)
	assert.True(t, line.HasTag("dialogue"))

	assert.True(t, r.Has("Note", 1))
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := map[string]string{
		"missing schema":  `{"type":"Scene","version":1}`,
		"float version":   `{"type":"Scene","version":1.5,"schema":{}}`,
		"not an object":   `[1,2]`,
		"bad prototype":   `{"type":"Scene","version":1,"schema":{},"prototype":{"a":}}`,
		"schema mistyped": `{"type":"Scene","version":1,"schema":{"type":7}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(raw), FormatJSON)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}

	_, err := ParseDefinition([]byte("type: [unterminated"), FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
