// Package accessor provides typed access to the properties of one component.
//
// An Accessor reads through the entity document and writes through
// Entity.ApplyPatch, so every write is validated, recorded for undo and
// broadcast. It listens for changes to its resource: property changes of
// its component are forwarded to OnPropertyChanged handlers, and any
// structural change of the resource invalidates it for good, because its
// component index may now address a different component.
package accessor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/notify"
	"github.com/dshills/entitydoc/internal/patch"
	"github.com/dshills/entitydoc/internal/schema"
)

// SchemaResolver looks up component schemas. *component.Registry implements it.
type SchemaResolver interface {
	Resolve(typ string, version int) (*schema.Schema, error)
}

// Accessor is a typed read/write view of one component.
type Accessor struct {
	key     component.Key
	typ     string
	version int
	ent     *entity.Entity
	schema  *schema.Schema

	sub   *notify.Subscription
	valid atomic.Bool

	mu       sync.Mutex
	handlers []func(propertyPath string)
}

// New creates an accessor for the component at index in ent. Changes are
// observed through notifier, which must be the publisher of ent. A nil
// schemas disables schema defaults.
func New(ent *entity.Entity, index int, notifier *notify.Notifier, schemas SchemaResolver) (*Accessor, error) {
	typ, version, err := ent.Document().ComponentType(index)
	if err != nil {
		return nil, fmt.Errorf("accessor for %s#%d: %w", ent.Resource(), index, err)
	}

	a := &Accessor{
		key:     component.Key{Resource: ent.Resource(), Index: index},
		typ:     typ,
		version: version,
		ent:     ent,
	}
	if schemas != nil {
		if a.schema, err = schemas.Resolve(typ, version); err != nil {
			return nil, fmt.Errorf("accessor for %s: %w", a.key, err)
		}
	}

	a.valid.Store(true)
	a.sub = notifier.SubscribeResource(a.key.Resource, a.handle)
	return a, nil
}

// Key returns the component key.
func (a *Accessor) Key() component.Key { return a.key }

// Type returns the component type name.
func (a *Accessor) Type() string { return a.typ }

// Version returns the component type version.
func (a *Accessor) Version() int { return a.version }

// IsValid reports whether the accessor may still be used. Once false it
// stays false.
func (a *Accessor) IsValid() bool { return a.valid.Load() }

// OnPropertyChanged registers fn to be called with the property path of
// every change to the component. A whole-component change reports "/".
func (a *Accessor) OnPropertyChanged(fn func(propertyPath string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, fn)
}

// Close invalidates the accessor and stops listening for changes.
func (a *Accessor) Close() {
	a.valid.Store(false)
	if a.sub != nil {
		a.sub.Unsubscribe()
	}
}

func (a *Accessor) handle(change component.Change) {
	if !a.IsValid() {
		return
	}
	if change.IsStructural() {
		a.Close()
	}
	if change.Key.Index != a.key.Index {
		return
	}

	a.mu.Lock()
	handlers := make([]func(string), len(a.handlers))
	copy(handlers, a.handlers)
	a.mu.Unlock()

	for _, fn := range handlers {
		fn(change.PropertyPath)
	}
}

// Get returns the value of the property at path. A missing property falls
// back to the schema default. The result must not be modified.
func (a *Accessor) Get(path string) (*node.Node, error) {
	p, err := a.resolve(path)
	if err != nil {
		return nil, err
	}

	val, err := a.ent.Document().ComponentProperty(a.key.Index, p)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, patch.ErrPathNotFound) {
		return nil, err
	}

	if a.schema != nil {
		if prop := a.schema.Property(p); prop != nil && prop.Default != nil {
			return node.FromValue(prop.Default)
		}
	}
	return nil, fmt.Errorf("%w: %s%s", ErrPropertyNotFound, a.key, p)
}

// Has reports whether the property at path is set on the component.
func (a *Accessor) Has(path string) bool {
	p, err := a.resolve(path)
	if err != nil {
		return false
	}
	_, err = a.ent.Document().ComponentProperty(a.key.Index, p)
	return err == nil
}

// GetString returns a string property.
func (a *Accessor) GetString(path string) (string, error) {
	val, err := a.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := val.AsString()
	if !ok {
		return "", typeError(path, "string", val)
	}
	return s, nil
}

// GetInt returns an integer property.
func (a *Accessor) GetInt(path string) (int, error) {
	val, err := a.Get(path)
	if err != nil {
		return 0, err
	}
	i, ok := val.AsInt()
	if !ok {
		return 0, typeError(path, "integer", val)
	}
	return int(i), nil
}

// GetFloat64 returns a numeric property.
func (a *Accessor) GetFloat64(path string) (float64, error) {
	val, err := a.Get(path)
	if err != nil {
		return 0, err
	}
	f, ok := val.AsNumber()
	if !ok {
		return 0, typeError(path, "number", val)
	}
	return f, nil
}

// GetBool returns a boolean property.
func (a *Accessor) GetBool(path string) (bool, error) {
	val, err := a.Get(path)
	if err != nil {
		return false, err
	}
	b, ok := val.AsBool()
	if !ok {
		return false, typeError(path, "boolean", val)
	}
	return b, nil
}

// GetStringSlice returns an array of strings.
func (a *Accessor) GetStringSlice(path string) ([]string, error) {
	val, err := a.Get(path)
	if err != nil {
		return nil, err
	}
	if !val.IsArray() {
		return nil, typeError(path, "string array", val)
	}
	result := make([]string, 0, val.Len())
	for _, item := range val.Items() {
		s, ok := item.AsString()
		if !ok {
			return nil, &TypeError{
				Path:     path,
				Expected: "string array",
				Actual:   fmt.Sprintf("array with %s element", item.Kind()),
			}
		}
		result = append(result, s)
	}
	return result, nil
}

// Set writes value to the property at path under undoGroupID. The
// property is replaced when present and added otherwise.
func (a *Accessor) Set(path string, value any, undoGroupID uint64) (entity.PatchSummary, error) {
	p, err := a.resolve(path)
	if err != nil {
		return entity.PatchSummary{}, err
	}
	v, err := node.FromValue(value)
	if err != nil {
		return entity.PatchSummary{}, fmt.Errorf("set %s%s: %w", a.key, p, err)
	}
	target, err := entity.PropertyPath(a.key.Index, p)
	if err != nil {
		return entity.PatchSummary{}, err
	}

	op := patch.Add(target, v)
	if a.Has(path) {
		op = patch.Replace(target, v)
	}
	return a.ent.ApplyPatch(op, undoGroupID, entity.ContextModify)
}

// Remove deletes the property at path under undoGroupID.
func (a *Accessor) Remove(path string, undoGroupID uint64) (entity.PatchSummary, error) {
	p, err := a.resolve(path)
	if err != nil {
		return entity.PatchSummary{}, err
	}
	target, err := entity.PropertyPath(a.key.Index, p)
	if err != nil {
		return entity.PatchSummary{}, err
	}
	return a.ent.ApplyPatch(patch.Remove(target), undoGroupID, entity.ContextModify)
}

// resolve parses a property path. A leading "/" is optional.
func (a *Accessor) resolve(path string) (pointer.Path, error) {
	if !a.IsValid() {
		return pointer.Path{}, fmt.Errorf("%w: %s", ErrInvalidated, a.key)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	p, err := pointer.Parse(path)
	if err != nil {
		return pointer.Path{}, err
	}
	if p.IsRoot() {
		return pointer.Path{}, fmt.Errorf("%w: %q does not name a property", pointer.ErrMalformedPath, path)
	}
	return p, nil
}

func typeError(path string, expected string, val *node.Node) *TypeError {
	return &TypeError{Path: path, Expected: expected, Actual: val.Kind().String()}
}
