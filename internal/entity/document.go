package entity

import (
	"fmt"
	"sort"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
	"github.com/dshills/entitydoc/internal/patch"
	"github.com/dshills/entitydoc/internal/schema"
)

// ComponentValidator checks a component fragment against the schema
// registered for its type and version. *component.Registry implements it.
type ComponentValidator interface {
	ValidateComponent(fragment *node.Node, typ string, version int) error
}

// componentsPath addresses the component array.
var componentsPath = pointer.MustParse("/" + component.ComponentsField)

// ComponentPath returns the path of the component at index. index may be
// -1 to address the end of the array.
func ComponentPath(index int) (pointer.Path, error) {
	if index == -1 {
		return componentsPath.Combine(pointer.Key(pointer.AppendToken))
	}
	return componentsPath.Combine(pointer.Index(index))
}

// PropertyPath returns the path of property inside the component at index.
func PropertyPath(index int, property pointer.Path) (pointer.Path, error) {
	base, err := componentsPath.Combine(pointer.Index(index))
	if err != nil {
		return pointer.Path{}, err
	}
	return base.Join(property), nil
}

// Document owns the tree of one entity and mutates it one patch at a time.
//
// A Document is never observed in an invalid state: Apply works on a copy
// and commits only after every check passed. Document is not safe for
// concurrent use; callers serialize access per resource.
type Document struct {
	resource   string
	root       *node.Node
	shape      *schema.Validator
	components ComponentValidator
	tags       map[string]int
}

// NewDocument creates a document for resource from an already parsed tree.
// The document takes ownership of root. A nil root starts an empty entity.
// A nil validator disables per-component validation.
func NewDocument(resource string, root *node.Node, validator ComponentValidator) (*Document, error) {
	if root == nil {
		root = Empty()
	}
	d := &Document{
		resource:   resource,
		root:       root,
		shape:      schema.NewValidator(DocumentSchema()),
		components: validator,
	}
	if err := d.shape.Validate(root); err != nil {
		return nil, &SchemaViolationError{Resource: resource, Err: err}
	}
	d.refreshTags()
	return d, nil
}

// Resource returns the resource identifier the document belongs to.
func (d *Document) Resource() string { return d.resource }

// Apply applies op atomically. On any error the document is unchanged.
// A patch that leaves the document deep-equal to its current state
// returns a summary with a nil Reverse and no changes.
func (d *Document) Apply(op patch.Operation) (summary PatchSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = PatchSummary{}
			err = &patch.ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	op, err = patch.Normalize(d.root, op)
	if err != nil {
		return PatchSummary{}, err
	}

	candidate, err := patch.Apply(d.root.Clone(), op)
	if err != nil {
		return PatchSummary{}, err
	}

	if node.Equal(candidate, d.root) {
		return PatchSummary{Operation: op}, nil
	}

	if err := d.shape.Validate(candidate); err != nil {
		return PatchSummary{}, &SchemaViolationError{Resource: d.resource, Err: err}
	}

	changes, err := d.extractChanges(candidate, op)
	if err != nil {
		return PatchSummary{}, err
	}

	for _, c := range changes {
		if err := d.validateChange(candidate, c); err != nil {
			return PatchSummary{}, err
		}
	}

	reverse, err := patch.Reverse(d.root, op)
	if err != nil {
		return PatchSummary{}, err
	}
	if err := checkReverse(op, reverse); err != nil {
		return PatchSummary{}, err
	}

	d.root = candidate

	summary = PatchSummary{Operation: op, Reverse: &reverse, Changes: changes}
	if summary.IsStructural() {
		d.refreshTags()
	}
	return summary, nil
}

// checkReverse rejects op when its reverse does not address a component.
// Such a reverse could never be applied back, so op is not committed. This
// happens for a move that overwrites a member of a different component.
func checkReverse(op, reverse patch.Operation) error {
	paths := []pointer.Path{reverse.Path}
	if reverse.Op == patch.OpMove || reverse.Op == patch.OpCopy {
		paths = append(paths, reverse.From)
	}
	for _, p := range paths {
		if _, err := resolveAddress(reverse, p); err != nil {
			return &patch.ApplicationError{
				Op:     op.Op,
				Path:   op.Path.String(),
				Reason: fmt.Sprintf("reverse %s spans more than one component", reverse),
				Err:    patch.ErrNoReverse,
			}
		}
	}
	return nil
}

// address is the component a path points into.
type address struct {
	index    int
	property pointer.Path
}

func (a address) whole() bool { return a.property.IsRoot() }

func (a address) propertyPath() string {
	if a.whole() {
		return component.WholeComponent
	}
	return a.property.String()
}

// resolveAddress splits a path of the form /components/<index>/<property...>.
func resolveAddress(op patch.Operation, path pointer.Path) (address, error) {
	if path.Len() < 2 || !path.StartsWith(componentsPath) {
		return address{}, &patch.ApplicationError{
			Op:     op.Op,
			Path:   path.String(),
			Reason: "path does not address a component",
		}
	}
	idx, ok := path.At(1).Index()
	if !ok {
		return address{}, &patch.ApplicationError{
			Op:     op.Op,
			Path:   path.String(),
			Reason: fmt.Sprintf("%q is not a component index", path.At(1).Token()),
		}
	}
	return address{index: idx, property: path.Slice(2, path.Len())}, nil
}

// extractChanges derives the change descriptors of op, which turned the
// live document into after.
func (d *Document) extractChanges(after *node.Node, op patch.Operation) ([]component.Change, error) {
	dest, err := resolveAddress(op, op.Path)
	if err != nil {
		return nil, err
	}

	switch op.Op {
	case patch.OpMove:
		src, err := resolveAddress(op, op.From)
		if err != nil {
			return nil, err
		}
		return d.moveChanges(after, op, src, dest)

	case patch.OpAdd, patch.OpCopy:
		source := d.root
		if dest.whole() {
			source = after
		}
		c, err := d.describe(source, dest, string(op.Op), op)
		if err != nil {
			return nil, err
		}
		return []component.Change{c}, nil

	default:
		c, err := d.describe(d.root, dest, string(op.Op), op)
		if err != nil {
			return nil, err
		}
		return []component.Change{c}, nil
	}
}

// moveChanges describes a move as a removal at the source followed by an
// addition at the destination.
func (d *Document) moveChanges(after *node.Node, op patch.Operation, src, dest address) ([]component.Change, error) {
	removal, err := d.describe(d.root, src, string(patch.OpRemove), op)
	if err != nil {
		return nil, err
	}
	// A property left behind in a component that shifted because the
	// destination inserted a whole component before it.
	if !src.whole() && dest.whole() && dest.index <= src.index {
		removal.Key.Index++
	}

	intermediate, err := patch.Apply(d.root.Clone(), patch.Remove(op.From))
	if err != nil {
		return nil, err
	}
	source := intermediate
	if dest.whole() {
		source = after
	}
	addition, err := d.describe(source, dest, string(patch.OpAdd), op)
	if err != nil {
		return nil, err
	}
	return []component.Change{removal, addition}, nil
}

// describe builds the change for addr, reading the component type from doc.
func (d *Document) describe(doc *node.Node, addr address, operation string, op patch.Operation) (component.Change, error) {
	typ, version, err := componentToken(doc, addr.index)
	if err != nil {
		return component.Change{}, &patch.ApplicationError{Op: op.Op, Path: op.Path.String(), Reason: err.Error(), Err: err}
	}
	return component.Change{
		Key:          component.Key{Resource: d.resource, Index: addr.index},
		Type:         typ,
		Version:      version,
		PropertyPath: addr.propertyPath(),
		Operation:    operation,
	}, nil
}

// validateChange checks the component touched by c in the candidate
// document. Whole-component removals are not validated.
func (d *Document) validateChange(after *node.Node, c component.Change) error {
	if d.components == nil {
		return nil
	}
	if c.IsStructural() && c.Operation == string(patch.OpRemove) {
		return nil
	}
	fragment := componentAt(after, c.Key.Index)
	if fragment == nil {
		return &ComponentValidationError{
			Key:     c.Key,
			Type:    c.Type,
			Version: c.Version,
			Err:     fmt.Errorf("%w: no component at index %d", patch.ErrIndexOutOfRange, c.Key.Index),
		}
	}
	if err := d.components.ValidateComponent(fragment, c.Type, c.Version); err != nil {
		return &ComponentValidationError{Key: c.Key, Type: c.Type, Version: c.Version, Err: err}
	}
	return nil
}

// refreshTags recomputes the tag set from the committed document.
func (d *Document) refreshTags() {
	tags := make(map[string]int)
	for i := 0; i < d.ComponentCount(); i++ {
		if typ, _, err := componentToken(d.root, i); err == nil {
			tags[typ]++
		}
	}
	d.tags = tags
}

// Root returns the live tree. It must not be modified.
func (d *Document) Root() *node.Node { return d.root }

// Snapshot returns a deep copy of the document.
func (d *Document) Snapshot() *node.Node { return d.root.Clone() }

// MarshalJSON returns the serialized document.
func (d *Document) MarshalJSON() ([]byte, error) { return d.root.MarshalJSON() }

// Get resolves path in the document. The result must not be modified.
func (d *Document) Get(path pointer.Path) (*node.Node, error) {
	return patch.Get(d.root, path)
}

// ComponentCount returns the number of components.
func (d *Document) ComponentCount() int {
	components, _ := d.root.Get(component.ComponentsField)
	return components.Len()
}

// Component returns the component at index, or nil. The result must not be modified.
func (d *Document) Component(index int) *node.Node {
	return componentAt(d.root, index)
}

// ComponentType returns the type and version of the component at index.
func (d *Document) ComponentType(index int) (string, int, error) {
	return componentToken(d.root, index)
}

// ComponentProperty resolves a property path inside the component at index.
func (d *Document) ComponentProperty(index int, property pointer.Path) (*node.Node, error) {
	path, err := PropertyPath(index, property)
	if err != nil {
		return nil, err
	}
	return patch.Get(d.root, path)
}

// Tags returns the distinct component types present, sorted.
func (d *Document) Tags() []string {
	result := make([]string, 0, len(d.tags))
	for typ := range d.tags {
		result = append(result, typ)
	}
	sort.Strings(result)
	return result
}

// HasTag reports whether a component of typ is present.
func (d *Document) HasTag(typ string) bool {
	return d.tags[typ] > 0
}

// ValidateComponents checks every component against its registered schema
// and returns the first failure.
func (d *Document) ValidateComponents() error {
	for i := 0; i < d.ComponentCount(); i++ {
		typ, version, err := componentToken(d.root, i)
		key := component.Key{Resource: d.resource, Index: i}
		if err != nil {
			return &ComponentValidationError{Key: key, Err: err}
		}
		if d.components == nil {
			continue
		}
		if err := d.components.ValidateComponent(componentAt(d.root, i), typ, version); err != nil {
			return &ComponentValidationError{Key: key, Type: typ, Version: version, Err: err}
		}
	}
	return nil
}

func componentAt(doc *node.Node, index int) *node.Node {
	components, ok := doc.Get(component.ComponentsField)
	if !ok || index < 0 || index >= components.Len() {
		return nil
	}
	return components.Index(index)
}

func componentToken(doc *node.Node, index int) (string, int, error) {
	c := componentAt(doc, index)
	if c == nil {
		return "", 0, fmt.Errorf("%w: no component at index %d", patch.ErrIndexOutOfRange, index)
	}
	raw, _ := c.Get(component.TypeField)
	token, ok := raw.AsString()
	if !ok {
		return "", 0, fmt.Errorf("component %d has no %s", index, component.TypeField)
	}
	return component.ParseToken(token)
}
