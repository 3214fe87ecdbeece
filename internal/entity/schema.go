package entity

import (
	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/schema"
)

// DocumentSchema returns the schema every entity document satisfies: an
// object with a components array whose items carry a type token, and an
// optional entityVersion equal to the current format version.
func DocumentSchema() *schema.Schema {
	item := schema.Object().
		Property(component.TypeField, schema.String().Pattern(component.TokenPattern).Build()).
		Required(component.TypeField).
		Build()

	return schema.Object().
		Title("Entity document").
		Property(component.ComponentsField, schema.Array().Items(item).Build()).
		Property(component.EntityVersionField, schema.Integer().Const(component.EntityVersion).Build()).
		Required(component.ComponentsField).
		Build()
}

// Empty returns a new document with no components.
func Empty() *node.Node {
	root := node.NewObject()
	_ = root.Set(component.EntityVersionField, node.Int(component.EntityVersion))
	_ = root.Set(component.ComponentsField, node.NewArray())
	return root
}
