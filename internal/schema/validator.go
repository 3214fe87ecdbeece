package schema

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
)

// DefaultMaxErrors caps the failures one Validate call reports.
const DefaultMaxErrors = 100

// Validator checks node trees against one root schema. It is safe for
// concurrent use; compiled patterns are shared between calls.
type Validator struct {
	schema *Schema

	// strict rejects members without a Properties entry even when
	// additionalProperties is absent.
	strict    bool
	firstOnly bool
	maxErrors int

	patterns sync.Map // pattern -> *regexp.Regexp
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// Strict treats an absent additionalProperties as false.
func Strict() ValidatorOption {
	return func(v *Validator) { v.strict = true }
}

// FirstErrorOnly stops at the first failure.
func FirstErrorOnly() ValidatorOption {
	return func(v *Validator) { v.firstOnly = true }
}

// MaxErrors caps the reported failures; n <= 0 removes the cap.
func MaxErrors(n int) ValidatorOption {
	return func(v *Validator) { v.maxErrors = n }
}

// NewValidator returns a validator for s. A nil schema accepts everything.
func NewValidator(s *Schema, opts ...ValidatorOption) *Validator {
	v := &Validator{schema: s, maxErrors: DefaultMaxErrors}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Schema() *Schema { return v.schema }

// Validate reports every way value breaks the schema, up to the error cap.
// A non-nil result is always a *ValidationErrors.
func (v *Validator) Validate(value *node.Node) error {
	if v.schema == nil {
		return nil
	}
	errs := &ValidationErrors{}
	v.validateValue("", value, v.schema, errs)
	return errs.AsError()
}

func (v *Validator) full(errs *ValidationErrors) bool {
	if v.firstOnly && errs.HasErrors() {
		return true
	}
	return v.maxErrors > 0 && errs.Len() >= v.maxErrors
}

func (v *Validator) validateValue(path string, value *node.Node, schema *Schema, errs *ValidationErrors) {
	if schema == nil || v.full(errs) {
		return
	}

	if schema.Ref != "" {
		target := v.resolveRef(schema.Ref)
		if target == nil {
			errs.Add(path, ConstraintUnresolved, fmt.Sprintf("unresolved reference %q", schema.Ref))
			return
		}
		v.validateValue(path, value, target, errs)
		return
	}

	for _, s := range schema.AllOf {
		v.validateValue(path, value, s, errs)
	}

	if len(schema.AnyOf) > 0 && v.countMatches(path, value, schema.AnyOf, 1) == 0 {
		errs.Add(path, ConstraintCombinator, "value does not match any of the allowed schemas")
	}

	if len(schema.OneOf) > 0 {
		switch v.countMatches(path, value, schema.OneOf, 2) {
		case 0:
			errs.Add(path, ConstraintCombinator, "value does not match any of the allowed schemas")
		case 1:
		default:
			errs.Add(path, ConstraintCombinator, "value matches more than one schema (must match exactly one)")
		}
	}

	if schema.Not != nil && v.countMatches(path, value, []*Schema{schema.Not}, 1) == 1 {
		errs.Add(path, ConstraintCombinator, "value should not match the schema")
	}

	if schema.Const != nil {
		want, err := node.FromValue(schema.Const)
		switch {
		case err != nil:
			errs.Add(path, ConstraintInvalidRule, fmt.Sprintf("invalid const: %v", err))
		case !node.Equal(value, want):
			errs.AddError(&ValidationError{
				Path:       path,
				Constraint: ConstraintConst,
				Message:    fmt.Sprintf("value must be %s", want),
				Value:      value,
				Expected:   want.String(),
			})
		}
	}

	if len(schema.Enum) > 0 {
		v.validateEnum(path, value, schema.Enum, errs)
	}

	if !schema.Type.IsEmpty() {
		v.validateType(path, value, schema, errs)
	} else {
		v.validateConstraints(path, value, schema, errs)
	}
}

// countMatches counts the schemas value satisfies, stopping at limit.
func (v *Validator) countMatches(path string, value *node.Node, schemas []*Schema, limit int) int {
	count := 0
	for _, s := range schemas {
		probe := &ValidationErrors{}
		v.validateValue(path, value, s, probe)
		if !probe.HasErrors() {
			count++
			if count >= limit {
				break
			}
		}
	}
	return count
}

// validateType applies the kind constraints once value matches one of the
// allowed types.
func (v *Validator) validateType(path string, value *node.Node, schema *Schema, errs *ValidationErrors) {
	for _, typ := range schema.Type.Types {
		if matchesType(value, typ) {
			v.validateConstraints(path, value, schema, errs)
			return
		}
	}
	errs.AddError(NewTypeError(path, schema.Type.String(), value))
}

// validateConstraints applies the keywords that belong to the value's kind.
func (v *Validator) validateConstraints(path string, value *node.Node, schema *Schema, errs *ValidationErrors) {
	switch value.Kind() {
	case node.KindString:
		s, _ := value.AsString()
		v.validateString(path, value, s, schema, errs)
	case node.KindNumber:
		v.validateNumber(path, value, schema, errs)
	case node.KindArray:
		v.validateArray(path, value, schema, errs)
	case node.KindObject:
		v.validateObject(path, value, schema, errs)
	}
}

func matchesType(value *node.Node, typ string) bool {
	switch typ {
	case TypeNameString:
		return value.Kind() == node.KindString
	case TypeNameNumber:
		return value.Kind() == node.KindNumber
	case TypeNameInteger:
		return value.IsInteger()
	case TypeNameBoolean:
		return value.Kind() == node.KindBool
	case TypeNameArray:
		return value.Kind() == node.KindArray
	case TypeNameObject:
		return value.Kind() == node.KindObject
	case TypeNameNull:
		return value.Kind() == node.KindNull
	default:
		return false
	}
}

func (v *Validator) validateString(path string, value *node.Node, s string, schema *Schema, errs *ValidationErrors) {
	length := utf8.RuneCountInString(s)

	if schema.MinLength != nil && length < *schema.MinLength {
		errs.Add(path, ConstraintLength, fmt.Sprintf("string length %d is less than minimum %d", length, *schema.MinLength))
	}

	if schema.MaxLength != nil && length > *schema.MaxLength {
		errs.Add(path, ConstraintLength, fmt.Sprintf("string length %d is greater than maximum %d", length, *schema.MaxLength))
	}

	if schema.Pattern != "" {
		re, err := v.compilePattern(schema.Pattern)
		if err != nil {
			errs.Add(path, ConstraintInvalidRule, fmt.Sprintf("invalid pattern %q: %v", schema.Pattern, err))
		} else if !re.MatchString(s) {
			errs.AddError(NewPatternError(path, value, schema.Pattern))
		}
	}
}

func (v *Validator) validateNumber(path string, value *node.Node, schema *Schema, errs *ValidationErrors) {
	f, _ := value.AsNumber()

	if (schema.Minimum != nil && f < *schema.Minimum) || (schema.Maximum != nil && f > *schema.Maximum) {
		errs.AddError(NewRangeError(path, value, schema.Minimum, schema.Maximum))
	}

	if schema.ExclusiveMinimum != nil && f <= *schema.ExclusiveMinimum {
		errs.Add(path, ConstraintRange, fmt.Sprintf("value must be greater than %v", *schema.ExclusiveMinimum))
	}

	if schema.ExclusiveMaximum != nil && f >= *schema.ExclusiveMaximum {
		errs.Add(path, ConstraintRange, fmt.Sprintf("value must be less than %v", *schema.ExclusiveMaximum))
	}

	if m := schema.MultipleOf; m != nil && *m != 0 {
		if q := f / *m; math.Abs(q-math.Round(q)) > 1e-9 {
			errs.Add(path, ConstraintMultipleOf, fmt.Sprintf("value must be a multiple of %v", *schema.MultipleOf))
		}
	}
}

func (v *Validator) validateArray(path string, value *node.Node, schema *Schema, errs *ValidationErrors) {
	items := value.Items()

	if schema.MinItems != nil && len(items) < *schema.MinItems {
		errs.Add(path, ConstraintItems, fmt.Sprintf("array has %d items, minimum is %d", len(items), *schema.MinItems))
	}

	if schema.MaxItems != nil && len(items) > *schema.MaxItems {
		errs.Add(path, ConstraintItems, fmt.Sprintf("array has %d items, maximum is %d", len(items), *schema.MaxItems))
	}

	if schema.UniqueItems {
	outer:
		for i := 1; i < len(items); i++ {
			for j := 0; j < i; j++ {
				if node.Equal(items[i], items[j]) {
					errs.Add(path, ConstraintUnique, fmt.Sprintf("array items must be unique, duplicate at index %d", i))
					break outer
				}
			}
		}
	}

	if schema.Items != nil {
		for i, item := range items {
			v.validateValue(fmt.Sprintf("%s/%d", path, i), item, schema.Items, errs)
		}
	}
}

// validateObject reports missing required members before checking the
// members present, in document order.
func (v *Validator) validateObject(path string, value *node.Node, schema *Schema, errs *ValidationErrors) {
	for _, req := range schema.Required {
		if !value.Has(req) {
			errs.AddError(NewRequiredError(joinPath(path, req)))
		}
	}

	for _, name := range value.Keys() {
		member, _ := value.Get(name)
		if sub, ok := schema.Properties[name]; ok {
			v.validateValue(joinPath(path, name), member, sub, errs)
			continue
		}
		if !schema.AllowsAdditionalProperties() || (v.strict && schema.AdditionalProperties == nil) {
			errs.AddError(NewUnknownPropertyError(joinPath(path, name)))
		}
	}
}

func (v *Validator) validateEnum(path string, value *node.Node, allowed []any, errs *ValidationErrors) {
	for _, a := range allowed {
		candidate, err := node.FromValue(a)
		if err == nil && node.Equal(value, candidate) {
			return
		}
	}
	errs.AddError(NewEnumError(path, value, allowed))
}

// resolveRef looks up "#/$defs/<name>" in the root schema. Other
// reference forms resolve to nil.
func (v *Validator) resolveRef(ref string) *Schema {
	if v.schema == nil || v.schema.Defs == nil {
		return nil
	}
	if name, ok := strings.CutPrefix(ref, "#/$defs/"); ok {
		return v.schema.Defs[name]
	}
	return nil
}

func (v *Validator) compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := v.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(pattern, re)
	return re, nil
}

func joinPath(base, name string) string {
	return base + "/" + pointer.Key(name).String()
}
