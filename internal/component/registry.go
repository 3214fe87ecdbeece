package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/schema"
)

// Definition describes one version of a component type.
type Definition struct {
	Type        string
	Version     int
	Description string
	Tags        []string

	// Schema constrains the properties of component instances.
	Schema *schema.Schema

	// Prototype is the document fragment used for new instances. It always
	// carries the type token.
	Prototype *node.Node
}

// Token returns the "<Type>@<version>" token of the definition.
func (d *Definition) Token() string {
	return FormatToken(d.Type, d.Version)
}

// HasTag reports whether the definition carries tag.
func (d *Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type entry struct {
	def       *Definition
	validator *schema.Validator
}

// Registry maps component types and versions to their definitions.
// Definitions are immutable once registered. Registry is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry // keyed by token
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a component type version with its schema and prototype.
// Registering the same type and version again with an equivalent schema is
// a no-op; with a different schema it fails with DuplicateRegistrationError.
// A nil prototype registers an instance holding only the type token.
func (r *Registry) Register(typ string, version int, s *schema.Schema, prototype *node.Node) error {
	return r.RegisterDefinition(Definition{Type: typ, Version: version, Schema: s, Prototype: prototype})
}

// RegisterDefinition adds def to the registry. See Register.
func (r *Registry) RegisterDefinition(def Definition) error {
	if !ValidTypeName(def.Type) {
		return fmt.Errorf("%w: type name %q", ErrInvalidDefinition, def.Type)
	}
	if def.Version < 0 {
		return fmt.Errorf("%w: %s has a negative version", ErrInvalidDefinition, def.Type)
	}
	if def.Schema == nil {
		return fmt.Errorf("%w: %s has no schema", ErrInvalidDefinition, def.Token())
	}

	proto, err := stampPrototype(def.Prototype, def.Token())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, def.Token(), err)
	}

	stored := def
	stored.Tags = append([]string(nil), def.Tags...)
	stored.Prototype = proto
	e := &entry{def: &stored, validator: schema.NewValidator(def.Schema)}

	if err := e.validate(proto); err != nil {
		return fmt.Errorf("%w: prototype: %w", ErrInvalidDefinition, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[stored.Token()]; ok {
		if existing.def.Schema.SameAs(def.Schema) {
			return nil
		}
		return &DuplicateRegistrationError{Type: def.Type, Version: def.Version}
	}
	r.entries[stored.Token()] = e
	return nil
}

// MustRegister registers def and panics on error.
func (r *Registry) MustRegister(def Definition) {
	if err := r.RegisterDefinition(def); err != nil {
		panic(err)
	}
}

// Resolve returns the schema registered for typ and version.
func (r *Registry) Resolve(typ string, version int) (*schema.Schema, error) {
	e, err := r.lookup(typ, version)
	if err != nil {
		return nil, err
	}
	return e.def.Schema, nil
}

// Definition returns the definition registered for typ and version.
// The result is shared and must not be modified.
func (r *Registry) Definition(typ string, version int) (*Definition, error) {
	e, err := r.lookup(typ, version)
	if err != nil {
		return nil, err
	}
	return e.def, nil
}

// Has reports whether typ and version are registered.
func (r *Registry) Has(typ string, version int) bool {
	_, err := r.lookup(typ, version)
	return err == nil
}

// Latest returns the highest registered version of typ.
func (r *Registry) Latest(typ string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Definition
	for _, e := range r.entries {
		if e.def.Type == typ && (best == nil || e.def.Version > best.Version) {
			best = e.def
		}
	}
	if best == nil {
		return nil, &NotFoundError{Type: typ}
	}
	return best, nil
}

// Prototype returns a fresh copy of the prototype for typ and version.
func (r *Registry) Prototype(typ string, version int) (*node.Node, error) {
	e, err := r.lookup(typ, version)
	if err != nil {
		return nil, err
	}
	return e.def.Prototype.Clone(), nil
}

// ValidateComponent checks fragment against the schema registered for typ
// and version. It returns a *NotFoundError for unknown types and a
// *ValidationError when the fragment is invalid.
func (r *Registry) ValidateComponent(fragment *node.Node, typ string, version int) error {
	e, err := r.lookup(typ, version)
	if err != nil {
		return err
	}
	return e.validate(fragment)
}

// All returns every definition sorted by type and version.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Definition, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.def)
	}
	sortDefinitions(result)
	return result
}

// Types returns the distinct registered type names in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.entries))
	for _, e := range r.entries {
		seen[e.def.Type] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for t := range seen {
		result = append(result, t)
	}
	sort.Strings(result)
	return result
}

// ByTag returns all definitions with the given tag.
func (r *Registry) ByTag(tag string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Definition
	for _, e := range r.entries {
		if e.def.HasTag(tag) {
			result = append(result, e.def)
		}
	}
	sortDefinitions(result)
	return result
}

func (r *Registry) lookup(typ string, version int) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[FormatToken(typ, version)]
	if !ok {
		return nil, &NotFoundError{Type: typ, Version: version}
	}
	return e, nil
}

func (e *entry) validate(fragment *node.Node) error {
	errs := &schema.ValidationErrors{}
	token, _ := fragment.Get(TypeField)
	if s, ok := token.AsString(); !ok || s != e.def.Token() {
		errs.AddError(&schema.ValidationError{
			Path:       "/" + TypeField,
			Constraint: schema.ConstraintConst,
			Message:    fmt.Sprintf("component type must be %s", e.def.Token()),
			Value:      token,
			Expected:   e.def.Token(),
		})
	}
	if err := e.validator.Validate(fragment); err != nil {
		if verrs, ok := err.(*schema.ValidationErrors); ok {
			errs.Errors = append(errs.Errors, verrs.Errors...)
		}
	}
	if errs.HasErrors() {
		return &ValidationError{Type: e.def.Type, Version: e.def.Version, Err: errs}
	}
	return nil
}

// stampPrototype returns a copy of proto with the type token as its first field.
func stampPrototype(proto *node.Node, token string) (*node.Node, error) {
	if proto == nil {
		proto = node.NewObject()
	}
	if !proto.IsObject() {
		return nil, fmt.Errorf("prototype must be an object, got %s", proto.Kind())
	}
	stamped := node.NewObject()
	_ = stamped.Set(TypeField, node.String(token))
	for _, k := range proto.Keys() {
		if k == TypeField {
			continue
		}
		v, _ := proto.Get(k)
		_ = stamped.Set(k, v.Clone())
	}
	return stamped, nil
}

func sortDefinitions(defs []*Definition) {
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Type != defs[j].Type {
			return defs[i].Type < defs[j].Type
		}
		return defs[i].Version < defs[j].Version
	})
}
