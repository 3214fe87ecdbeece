package accessor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/notify"
	"github.com/dshills/entitydoc/internal/patch"
	"github.com/dshills/entitydoc/internal/schema"
)

const resource = "scenes/opening"

type fixture struct {
	registry *component.Registry
	notifier *notify.Notifier
	entity   *entity.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := component.NewRegistry()
	require.NoError(t, r.Register("Scene", 1,
		schema.Object().
			Property("sceneTitle", schema.String().Build()).
			Property("act", schema.Integer().Default(1).Build()).
			Property("draft", schema.Boolean().Build()).
			Property("rating", schema.Number().Build()).
			Property("cast", schema.Array().Items(schema.String().Build()).Build()).
			Required("sceneTitle").
			Build(),
		node.MustParse(`{"sceneTitle":"Untitled"}`),
	))

	doc, err := entity.NewDocument(resource, node.MustParse(`{"components":[
		{"componentType":"Scene@1","sceneTitle":"Intro","draft":true,"rating":4.5,"cast":["Ana","Bo"]},
		{"componentType":"Scene@1","sceneTitle":"Outro","act":3}
	]}`), r)
	require.NoError(t, err)

	n := notify.New()
	t.Cleanup(n.Close)
	return &fixture{registry: r, notifier: n, entity: entity.New(doc, entity.WithPublisher(n))}
}

func (f *fixture) accessor(t *testing.T, index int) *Accessor {
	t.Helper()
	a, err := New(f.entity, index, f.notifier, f.registry)
	require.NoError(t, err)
	return a
}

func TestAccessor_TypedGetters(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)

	assert.Equal(t, component.Key{Resource: resource, Index: 0}, a.Key())
	assert.Equal(t, "Scene", a.Type())
	assert.Equal(t, 1, a.Version())

	title, err := a.GetString("sceneTitle")
	require.NoError(t, err)
	assert.Equal(t, "Intro", title)

	title, err = a.GetString("/sceneTitle")
	require.NoError(t, err)
	assert.Equal(t, "Intro", title)

	draft, err := a.GetBool("draft")
	require.NoError(t, err)
	assert.True(t, draft)

	rating, err := a.GetFloat64("rating")
	require.NoError(t, err)
	assert.Equal(t, 4.5, rating)

	cast, err := a.GetStringSlice("cast")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ana", "Bo"}, cast)

	first, err := a.GetString("cast/0")
	require.NoError(t, err)
	assert.Equal(t, "Ana", first)
}

func TestAccessor_SchemaDefaults(t *testing.T) {
	f := newFixture(t)

	act, err := f.accessor(t, 0).GetInt("act")
	require.NoError(t, err)
	assert.Equal(t, 1, act, "missing property falls back to the schema default")

	act, err = f.accessor(t, 1).GetInt("act")
	require.NoError(t, err)
	assert.Equal(t, 3, act)

	_, err = f.accessor(t, 1).Get("draft")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestAccessor_TypeErrors(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)

	_, err := a.GetInt("sceneTitle")
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "sceneTitle", te.Path)
	assert.Equal(t, "integer", te.Expected)
	assert.Equal(t, "string", te.Actual)

	_, err = a.GetBool("rating")
	assert.ErrorAs(t, err, &te)
	_, err = a.GetStringSlice("sceneTitle")
	assert.ErrorAs(t, err, &te)
	_, err = a.GetFloat64("cast")
	assert.ErrorAs(t, err, &te)
}

func TestAccessor_SetAndRemove(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)

	s, err := a.Set("sceneTitle", "Prologue", 0)
	require.NoError(t, err)
	assert.Equal(t, patch.OpReplace, s.Operation.Op)
	title, _ := a.GetString("sceneTitle")
	assert.Equal(t, "Prologue", title)

	s, err = a.Set("act", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, patch.OpAdd, s.Operation.Op)
	assert.True(t, a.Has("act"))

	_, err = a.Set("act", "two", 0)
	assert.ErrorIs(t, err, entity.ErrComponentValidation)

	_, err = a.Remove("act", 0)
	require.NoError(t, err)
	assert.False(t, a.Has("act"))

	assert.Equal(t, 3, f.entity.History().UndoCount())
	assert.True(t, a.IsValid(), "property edits keep the accessor valid")
}

func TestAccessor_PropertyChangedEvents(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)
	other := f.accessor(t, 1)

	var got, otherGot []string
	a.OnPropertyChanged(func(p string) { got = append(got, p) })
	other.OnPropertyChanged(func(p string) { otherGot = append(otherGot, p) })

	_, err := a.Set("sceneTitle", "Prologue", 0)
	require.NoError(t, err)
	_, err = other.Set("act", 4, 0)
	require.NoError(t, err)
	_, err = f.entity.Undo()
	require.NoError(t, err)

	assert.Equal(t, []string{"/sceneTitle"}, got)
	assert.Equal(t, []string{"/act", "/act"}, otherGot)
}

func TestAccessor_InvalidatedByStructuralChange(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 1)

	var got []string
	a.OnPropertyChanged(func(p string) { got = append(got, p) })

	_, err := f.entity.ApplyPatch(patch.Remove(pointer.MustParse("/components/0")), 0, entity.ContextModify)
	require.NoError(t, err)

	assert.False(t, a.IsValid())
	assert.Empty(t, got, "a removal elsewhere is not a change of this component")

	_, err = a.GetString("sceneTitle")
	assert.ErrorIs(t, err, ErrInvalidated)
	_, err = a.Set("sceneTitle", "x", 0)
	assert.ErrorIs(t, err, ErrInvalidated)

	// Undoing the removal restores the layout, but the accessor stays invalid.
	_, err = f.entity.Undo()
	require.NoError(t, err)
	assert.False(t, a.IsValid())
}

func TestAccessor_StructuralChangeOfOwnComponentIsReported(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)

	var got []string
	a.OnPropertyChanged(func(p string) {
		got = append(got, p)
		assert.False(t, a.IsValid(), "invalidated before handlers run")
	})

	_, err := f.entity.ApplyPatch(patch.Replace(pointer.MustParse("/components/0"),
		node.MustParse(`{"componentType":"Scene@1","sceneTitle":"New"}`)), 0, entity.ContextModify)
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, got)
}

func TestAccessor_OtherResourcesAreIgnored(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)

	f.notifier.Publish(component.Change{
		Key:          component.Key{Resource: "other", Index: 0},
		PropertyPath: "/",
		Operation:    "remove",
	})
	assert.True(t, a.IsValid())
}

func TestAccessor_NewErrors(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.entity, 5, f.notifier, f.registry)
	assert.ErrorIs(t, err, patch.ErrIndexOutOfRange)

	_, err = New(f.entity, 0, f.notifier, component.NewRegistry())
	assert.ErrorIs(t, err, component.ErrNotFound)

	a, err := New(f.entity, 0, f.notifier, nil)
	require.NoError(t, err)
	_, err = a.Get("act")
	assert.ErrorIs(t, err, ErrPropertyNotFound, "no schema, no default")
}

func TestAccessor_Close(t *testing.T) {
	f := newFixture(t)
	a := f.accessor(t, 0)
	before := f.notifier.Len()

	a.Close()
	assert.False(t, a.IsValid())
	assert.Equal(t, before-1, f.notifier.Len())
}

func TestCache(t *testing.T) {
	f := newFixture(t)
	c := NewCache(f.notifier, f.registry)
	t.Cleanup(c.Close)

	a1, err := c.Get(f.entity, 0)
	require.NoError(t, err)
	again, err := c.Get(f.entity, 0)
	require.NoError(t, err)
	assert.Same(t, a1, again)

	a2, err := c.Get(f.entity, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = a1.Set("sceneTitle", "Changed", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len(), "property edits keep cached accessors")

	_, err = f.entity.ApplyPatch(patch.Remove(pointer.MustParse("/components/0")), 0, entity.ContextModify)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.False(t, a1.IsValid())
	assert.False(t, a2.IsValid())

	fresh, err := c.Get(f.entity, 0)
	require.NoError(t, err)
	assert.NotSame(t, a1, fresh)
	title, err := fresh.GetString("sceneTitle")
	require.NoError(t, err)
	assert.Equal(t, "Outro", title)

	c.Drop(resource)
	assert.False(t, fresh.IsValid())
	assert.Equal(t, 0, c.Len())
}
