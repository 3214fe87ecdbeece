// Package entity implements entity documents and their transactional history.
//
// A Document holds the tree of one entity: an object whose "components"
// array lists typed component objects. Every mutation is a single patch
// operation applied atomically in these steps:
//
//  1. Apply the operation to a copy of the document.
//  2. Return a no-op summary if the copy equals the document.
//  3. Validate the copy against the document schema.
//  4. Derive the touched component and property path.
//  5. Validate each touched component against its registered schema.
//  6. Compute the reverse operation.
//  7. Commit the copy.
//  8. Refresh the tag set after structural changes.
//
// A failure at any step leaves the document unchanged.
//
// An Entity wraps a Document with undo and redo stacks. Patches applied
// under the same non-zero undo group id undo and redo together:
//
//	group := uint64(7)
//	ent.ApplyPatch(patch.Replace(title, node.String("A")), group, entity.ContextModify)
//	ent.ApplyPatch(patch.Replace(act, node.Int(2)), group, entity.ContextModify)
//	ent.Undo() // reverts both
//
// Component indices shift when components are inserted or removed. A
// component.Key must not be used after a structural change of its resource.
package entity
