package schema

// JSON type names accepted by the "type" keyword.
const (
	TypeNameString  = "string"
	TypeNameNumber  = "number"
	TypeNameInteger = "integer"
	TypeNameBoolean = "boolean"
	TypeNameArray   = "array"
	TypeNameObject  = "object"
	TypeNameNull    = "null"
)

// Builder assembles a Schema in code. Every method mutates the builder and
// returns it, so definitions read as a single chained expression:
//
//	schema.Object().
//		Property("sceneTitle", schema.String().MinLength(1).Build()).
//		Required("sceneTitle").
//		Build()
type Builder struct {
	s Schema
}

// NewBuilder returns a builder for an unconstrained schema.
func NewBuilder() *Builder { return &Builder{} }

// Of returns a builder constrained to the given JSON types.
func Of(types ...string) *Builder { return NewBuilder().Type(types...) }

func String() *Builder  { return Of(TypeNameString) }
func Integer() *Builder { return Of(TypeNameInteger) }
func Number() *Builder  { return Of(TypeNameNumber) }
func Boolean() *Builder { return Of(TypeNameBoolean) }
func Array() *Builder   { return Of(TypeNameArray) }
func Object() *Builder  { return Of(TypeNameObject) }

// Nullable returns a builder accepting typ or null.
func Nullable(typ string) *Builder { return Of(typ, TypeNameNull) }

// ArrayOf returns an array builder whose elements must match item.
func ArrayOf(item *Schema) *Builder { return Array().Items(item) }

// StringEnum returns a string builder restricted to values.
func StringEnum(values ...string) *Builder {
	enum := make([]any, 0, len(values))
	for _, v := range values {
		enum = append(enum, v)
	}
	return String().Enum(enum...)
}

// IntRange returns an integer builder bounded inclusively by lo and hi.
func IntRange(lo, hi int) *Builder {
	return Integer().Minimum(float64(lo)).Maximum(float64(hi))
}

// Build returns the schema assembled so far. Later calls on the builder do
// not affect schemas already built.
func (b *Builder) Build() *Schema {
	out := b.s
	return &out
}

func (b *Builder) Title(v string) *Builder       { b.s.Title = v; return b }
func (b *Builder) Description(v string) *Builder { b.s.Description = v; return b }
func (b *Builder) Default(v any) *Builder        { b.s.Default = v; return b }
func (b *Builder) Const(v any) *Builder          { b.s.Const = v; return b }
func (b *Builder) Ref(ref string) *Builder       { b.s.Ref = ref; return b }
func (b *Builder) Pattern(re string) *Builder    { b.s.Pattern = re; return b }

// Type replaces the allowed JSON types.
func (b *Builder) Type(types ...string) *Builder {
	b.s.Type = SchemaType{Types: types}
	return b
}

// Enum replaces the allowed values. Candidates are converted to nodes and
// compared with node.Equal.
func (b *Builder) Enum(values ...any) *Builder {
	b.s.Enum = values
	return b
}

// Numeric bounds.

func (b *Builder) Minimum(v float64) *Builder          { b.s.Minimum = ptr(v); return b }
func (b *Builder) Maximum(v float64) *Builder          { b.s.Maximum = ptr(v); return b }
func (b *Builder) ExclusiveMinimum(v float64) *Builder { b.s.ExclusiveMinimum = ptr(v); return b }
func (b *Builder) ExclusiveMaximum(v float64) *Builder { b.s.ExclusiveMaximum = ptr(v); return b }
func (b *Builder) MultipleOf(v float64) *Builder       { b.s.MultipleOf = ptr(v); return b }

// Length bounds. Strings are measured in runes.

func (b *Builder) MinLength(n int) *Builder { b.s.MinLength = ptr(n); return b }
func (b *Builder) MaxLength(n int) *Builder { b.s.MaxLength = ptr(n); return b }
func (b *Builder) MinItems(n int) *Builder  { b.s.MinItems = ptr(n); return b }
func (b *Builder) MaxItems(n int) *Builder  { b.s.MaxItems = ptr(n); return b }

// UniqueItems rejects arrays containing equal elements.
func (b *Builder) UniqueItems() *Builder {
	b.s.UniqueItems = true
	return b
}

// Items constrains every array element.
func (b *Builder) Items(item *Schema) *Builder {
	b.s.Items = item
	return b
}

// Property constrains the member name of an object. Building does not copy
// nested schemas; do not reuse a property schema after mutating it.
func (b *Builder) Property(name string, s *Schema) *Builder {
	if b.s.Properties == nil {
		b.s.Properties = map[string]*Schema{}
	}
	b.s.Properties[name] = s
	return b
}

// Required appends to the list of members an object must have.
func (b *Builder) Required(names ...string) *Builder {
	b.s.Required = append(b.s.Required, names...)
	return b
}

// AdditionalProperties controls whether members without a Property entry
// are accepted. Unset means accepted.
func (b *Builder) AdditionalProperties(allowed bool) *Builder {
	b.s.AdditionalProperties = ptr(allowed)
	return b
}

// Combinators.

func (b *Builder) AllOf(all ...*Schema) *Builder  { b.s.AllOf = all; return b }
func (b *Builder) AnyOf(some ...*Schema) *Builder { b.s.AnyOf = some; return b }
func (b *Builder) OneOf(one ...*Schema) *Builder  { b.s.OneOf = one; return b }
func (b *Builder) Not(s *Schema) *Builder         { b.s.Not = s; return b }

// Def registers a definition that Ref can name as "#/$defs/<name>".
func (b *Builder) Def(name string, s *Schema) *Builder {
	if b.s.Defs == nil {
		b.s.Defs = map[string]*Schema{}
	}
	b.s.Defs[name] = s
	return b
}

func ptr[T any](v T) *T { return &v }
