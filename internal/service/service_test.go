package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/patch"
	"github.com/dshills/entitydoc/internal/schema"
	"github.com/dshills/entitydoc/internal/store"
)

const scene = "scenes/opening"

func testRegistry(t *testing.T) *component.Registry {
	t.Helper()
	r := component.NewRegistry()
	require.NoError(t, r.Register("Scene", 1,
		schema.Object().
			Property("sceneTitle", schema.String().Build()).
			Property("act", schema.Integer().Build()).
			Required("sceneTitle").
			Build(),
		node.MustParse(`{"sceneTitle":"Untitled"}`),
	))
	require.NoError(t, r.Register("Scene", 2,
		schema.Object().
			Property("sceneTitle", schema.String().Build()).
			Property("act", schema.Integer().Build()).
			Property("mood", schema.String().Build()).
			Required("sceneTitle").
			Build(),
		node.MustParse(`{"sceneTitle":"Untitled","mood":"calm"}`),
	))
	require.NoError(t, r.Register("Line", 1,
		schema.Object().
			Property("text", schema.String().Build()).
			Required("text").
			Build(),
		node.MustParse(`{"text":""}`),
	))
	return r
}

func newService(t *testing.T, st store.Store) *Service {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	s := New(st, testRegistry(t), WithMetrics(NewMetrics(prometheus.NewRegistry())))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func key(index int) component.Key {
	return component.Key{Resource: scene, Index: index}
}

func typeAt(t *testing.T, s *Service, index int) string {
	t.Helper()
	typ, _, err := s.ComponentType(context.Background(), key(index))
	require.NoError(t, err)
	return typ
}

func TestAcquireCreatesEmptyEntity(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s := newService(t, st)

	ent, err := s.Acquire(ctx, scene)
	require.NoError(t, err)
	assert.Equal(t, 0, ent.Document().ComponentCount())
	assert.True(t, s.IsLoaded(scene))
	assert.True(t, s.IsModified(scene))

	again, err := s.Acquire(ctx, scene)
	require.NoError(t, err)
	assert.Same(t, ent, again)

	n, err := s.SaveModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, s.IsModified(scene))

	data, err := st.Load(ctx, scene)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entityVersion":1,"components":[]}`, string(data))

	n, err = s.SaveModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAcquireInvalidResource(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Acquire(context.Background(), "../outside")
	assert.ErrorIs(t, err, store.ErrInvalidResource)
}

func TestAcquireMigratesLegacyDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(ctx, scene, []byte(
		`{"_entityVersion":1,"_components":[{"_type":"Scene#1","sceneTitle":"Old"}],"_activity":"x"}`)))
	s := newService(t, st)

	ent, err := s.Acquire(ctx, scene)
	require.NoError(t, err)
	assert.Equal(t, 1, ent.Document().ComponentCount())
	assert.Equal(t, "Scene", typeAt(t, s, 0))
	assert.True(t, s.IsModified(scene))

	saved, err := s.Save(ctx, scene)
	require.NoError(t, err)
	assert.True(t, saved)
	data, _ := st.Load(ctx, scene)
	assert.JSONEq(t, `{"entityVersion":1,"components":[{"componentType":"Scene@1","sceneTitle":"Old"}]}`, string(data))
}

func TestAcquireRejectsInvalidDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(ctx, scene, []byte(`{"components":{}}`)))
	s := newService(t, st)

	_, err := s.Acquire(ctx, scene)
	assert.ErrorIs(t, err, entity.ErrSchemaViolation)
	assert.False(t, s.IsLoaded(scene))
}

func TestStoredDocumentIsNotModified(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(ctx, scene, []byte(
		`{"entityVersion":1,"components":[{"componentType":"Line@1","text":"hi"}]}`)))
	s := newService(t, st)

	_, err := s.Acquire(ctx, scene)
	require.NoError(t, err)
	assert.False(t, s.IsModified(scene))

	n, err := s.SaveModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAddComponentUsesLatestPrototype(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)

	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))
	require.NoError(t, s.AddComponent(ctx, key(0), "Scene"))

	count, err := s.ComponentCount(ctx, scene)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	typ, version, err := s.ComponentType(ctx, key(0))
	require.NoError(t, err)
	assert.Equal(t, "Scene", typ)
	assert.Equal(t, 2, version)

	mood, err := s.GetProperty(ctx, key(0), "mood")
	require.NoError(t, err)
	assert.Equal(t, "calm", mustString(t, mood))

	tags, err := s.Tags(ctx, scene)
	require.NoError(t, err)
	assert.Equal(t, []string{"Line", "Scene"}, tags)

	ok, err := s.HasTag(ctx, scene, "Line")
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.AddComponent(ctx, key(0), "Unknown")
	assert.ErrorIs(t, err, component.ErrNotFound)

	err = s.AddComponent(ctx, key(7), "Line")
	assert.ErrorIs(t, err, patch.ErrPatchApplication)
}

func TestRemoveComponent(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))

	require.NoError(t, s.RemoveComponent(ctx, key(0)))
	assert.Equal(t, "Scene", typeAt(t, s, 0))

	ok, err := s.HasTag(ctx, scene, "Line")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.RemoveComponent(ctx, key(3)))
}

func TestReplaceComponentUndoesAsOneStep(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))

	require.NoError(t, s.ReplaceComponent(ctx, key(0), "Line"))
	assert.Equal(t, "Line", typeAt(t, s, 0))
	assert.Equal(t, "Line", typeAt(t, s, 1))
	count, _ := s.ComponentCount(ctx, scene)
	assert.Equal(t, 2, count)

	changed, err := s.Undo(ctx, scene)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Scene", typeAt(t, s, 0))
	assert.Equal(t, "Line", typeAt(t, s, 1))

	changed, err = s.Redo(ctx, scene)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Line", typeAt(t, s, 0))

	assert.Error(t, s.ReplaceComponent(ctx, key(5), "Line"))
}

func TestCopyAndMoveComponent(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))

	require.NoError(t, s.CopyComponent(ctx, scene, 0, 2))
	assert.Equal(t, "Scene", typeAt(t, s, 2))

	require.NoError(t, s.MoveComponent(ctx, scene, 1, 0))
	assert.Equal(t, "Line", typeAt(t, s, 0))
	assert.Equal(t, "Scene", typeAt(t, s, 1))

	undos, err := s.UndoCount(ctx, scene)
	require.NoError(t, err)
	require.NoError(t, s.MoveComponent(ctx, scene, 1, 1))
	require.NoError(t, s.CopyComponent(ctx, scene, 1, 1))
	after, _ := s.UndoCount(ctx, scene)
	assert.Equal(t, undos, after)
}

func TestSetAndGetProperty(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))

	require.NoError(t, s.SetProperty(ctx, key(0), "/sceneTitle", "Finale", false))
	require.NoError(t, s.SetProperty(ctx, key(0), "act", 3, true))

	v, err := s.GetProperty(ctx, key(0), "sceneTitle")
	require.NoError(t, err)
	assert.Equal(t, "Finale", mustString(t, v))

	v, err = s.GetProperty(ctx, key(0), "/act")
	require.NoError(t, err)
	act, _ := v.AsInt()
	assert.Equal(t, int64(3), act)

	// Returned values are copies.
	require.NoError(t, v.UnmarshalJSON([]byte(`99`)))
	again, _ := s.GetProperty(ctx, key(0), "act")
	act, _ = again.AsInt()
	assert.Equal(t, int64(3), act)

	// Replacing a missing property fails.
	err = s.SetProperty(ctx, key(0), "missing", 1, false)
	assert.ErrorIs(t, err, patch.ErrPatchApplication)

	// Schema violations are rejected and leave the document unchanged.
	err = s.SetProperty(ctx, key(0), "sceneTitle", 12, false)
	assert.ErrorIs(t, err, entity.ErrComponentValidation)
	v, _ = s.GetProperty(ctx, key(0), "sceneTitle")
	assert.Equal(t, "Finale", mustString(t, v))

	_, err = s.GetProperty(ctx, key(0), "nowhere")
	assert.ErrorIs(t, err, patch.ErrPathNotFound)
}

func TestUndoRedo(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)

	changed, err := s.Undo(ctx, scene)
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = s.Redo(ctx, scene)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))
	require.NoError(t, s.SetProperty(ctx, key(0), "sceneTitle", "A", false))

	changed, err = s.Undo(ctx, scene)
	require.NoError(t, err)
	assert.True(t, changed)
	v, _ := s.GetProperty(ctx, key(0), "sceneTitle")
	assert.Equal(t, "Untitled", mustString(t, v))

	redos, _ := s.RedoCount(ctx, scene)
	assert.Equal(t, 1, redos)

	changed, err = s.Redo(ctx, scene)
	require.NoError(t, err)
	assert.True(t, changed)
	v, _ = s.GetProperty(ctx, key(0), "sceneTitle")
	assert.Equal(t, "A", mustString(t, v))

	m := s.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryTotal.WithLabelValues("undo", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryTotal.WithLabelValues("undo", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HistoryTotal.WithLabelValues("redo", "applied")))
}

func TestGroupedApplyPatch(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))

	group := s.NewUndoGroupID()
	for _, title := range []string{"one", "two", "three"} {
		path, err := entity.PropertyPath(0, mustPath(t, "/sceneTitle"))
		require.NoError(t, err)
		_, err = s.ApplyPatch(ctx, scene, patch.Replace(path, node.String(title)), group)
		require.NoError(t, err)
	}

	changed, err := s.Undo(ctx, scene)
	require.NoError(t, err)
	assert.True(t, changed)
	v, _ := s.GetProperty(ctx, key(0), "sceneTitle")
	assert.Equal(t, "Untitled", mustString(t, v))
}

func TestNewUndoGroupID(t *testing.T) {
	s := newService(t, nil)
	assert.Equal(t, uint64(1), s.NewUndoGroupID())
	assert.Equal(t, uint64(2), s.NewUndoGroupID())
}

func TestComponentsOfType(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))

	keys, err := s.ComponentsOfType(ctx, scene, "Line")
	require.NoError(t, err)
	assert.Equal(t, []component.Key{key(1), key(2)}, keys)
}

func TestPatchMetrics(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))
	require.NoError(t, s.SetProperty(ctx, key(0), "sceneTitle", "Untitled", false))
	_ = s.SetProperty(ctx, key(0), "sceneTitle", false, false)

	m := s.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchesTotal.WithLabelValues("add", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchesTotal.WithLabelValues("replace", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatchesTotal.WithLabelValues("replace", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadedEntities))
}

func TestAccessorIsCachedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))

	a, err := s.Accessor(ctx, key(0))
	require.NoError(t, err)
	b, err := s.Accessor(ctx, key(0))
	require.NoError(t, err)
	assert.Same(t, a, b)

	title, err := a.GetString("sceneTitle")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", title)

	require.NoError(t, s.AddComponent(ctx, key(0), "Line"))
	assert.False(t, a.IsValid())

	c, err := s.Accessor(ctx, key(1))
	require.NoError(t, err)
	assert.True(t, c.IsValid())
	assert.Equal(t, "Scene", c.Type())
}

func TestUnloadDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Scene"))

	assert.True(t, s.Unload(scene))
	assert.False(t, s.Unload(scene))
	assert.Empty(t, s.Loaded())

	count, err := s.ComponentCount(ctx, scene)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUnloadAndDeleteClearHistory(t *testing.T) {
	ctx := context.Background()
	s := newService(t, nil)

	ent, err := s.Acquire(ctx, scene)
	require.NoError(t, err)
	require.NoError(t, s.AddComponent(ctx, key(0), "Scene"))
	require.True(t, ent.CanUndo())

	require.NoError(t, s.Delete(ctx, scene))
	assert.False(t, ent.CanUndo())
	assert.Equal(t, 0, ent.History().UndoCount())

	ent, err = s.Acquire(ctx, scene)
	require.NoError(t, err)
	require.NoError(t, s.AddComponent(ctx, key(0), "Line"))
	_, err = s.Undo(ctx, scene)
	require.NoError(t, err)
	require.True(t, ent.CanRedo())

	assert.True(t, s.Unload(scene))
	assert.False(t, ent.CanUndo())
	assert.False(t, ent.CanRedo())
}

func TestDeleteCopyRename(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s := newService(t, st)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))

	require.NoError(t, s.Copy(ctx, scene, "scenes/copy"))
	count, err := s.ComponentCount(ctx, "scenes/copy")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.Rename(ctx, "scenes/copy", "scenes/renamed"))
	assert.False(t, s.IsLoaded("scenes/copy"))
	_, err = st.Load(ctx, "scenes/copy")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Load(ctx, "scenes/renamed")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "scenes/renamed"))
	_, err = st.Load(ctx, "scenes/renamed")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting an entity that was never stored is fine.
	require.NoError(t, s.Delete(ctx, "scenes/never"))
	assert.Equal(t, []string{scene}, s.Loaded())
}

func TestSaveNotLoaded(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Save(context.Background(), scene)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestConcurrentEditsAndSaves(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s := New(st, testRegistry(t), WithSaveConcurrency(2))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := fmt.Sprintf("lines/%d", i)
			k := component.Key{Resource: res, Index: 0}
			assert.NoError(t, s.AddComponent(ctx, component.Key{Resource: res, Index: -1}, "Line"))
			for j := 0; j < 10; j++ {
				assert.NoError(t, s.SetProperty(ctx, k, "text", fmt.Sprintf("v%d", j), false))
			}
		}(i)
	}
	wg.Wait()

	n, err := s.SaveModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	list, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 8)
}

func TestWatchUnloadsRemovedEntities(t *testing.T) {
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	s := newService(t, fs)
	require.NoError(t, s.AddComponent(ctx, key(-1), "Line"))
	_, err = s.SaveModified(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Watch(fs))
	require.NoError(t, os.Remove(fs.PathFor(scene)))

	assert.Eventually(t, func() bool { return !s.IsLoaded(scene) }, 2*time.Second, 20*time.Millisecond)
}

func TestClose(t *testing.T) {
	s := New(store.NewMemoryStore(), nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Acquire(context.Background(), scene)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.SaveModified(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func mustString(t *testing.T, n *node.Node) string {
	t.Helper()
	s, ok := n.AsString()
	require.True(t, ok, "expected string, got %s", n.Kind())
	return s
}

func mustPath(t *testing.T, s string) pointer.Path {
	t.Helper()
	p, err := pointer.Parse(s)
	require.NoError(t, err)
	return p
}
