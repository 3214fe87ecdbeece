package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/document/pointer"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/patch"
)

// apply runs op against the locked entity and records the outcome.
func (s *Service) apply(e *entry, op patch.Operation, undoGroupID uint64) (entity.PatchSummary, error) {
	summary, err := e.ent.ApplyPatch(op, undoGroupID, entity.ContextModify)
	switch {
	case err != nil:
		s.metrics.PatchesTotal.WithLabelValues(string(op.Op), "rejected").Inc()
		s.logger.Debug("patch rejected",
			zap.String("resource", e.ent.Resource()),
			zap.Stringer("op", op),
			zap.Error(err))
	case summary.IsNoOp():
		s.metrics.PatchesTotal.WithLabelValues(string(op.Op), "noop").Inc()
	default:
		s.metrics.PatchesTotal.WithLabelValues(string(op.Op), "applied").Inc()
	}
	return summary, err
}

// ApplyPatch applies one operation to the entity of resource.
func (s *Service) ApplyPatch(ctx context.Context, resource string, op patch.Operation, undoGroupID uint64) (entity.PatchSummary, error) {
	var summary entity.PatchSummary
	err := s.withEntry(ctx, resource, func(e *entry) error {
		var err error
		summary, err = s.apply(e, op, undoGroupID)
		return err
	})
	return summary, err
}

// AddComponent inserts the prototype of the latest registered version of
// typ at key. Index -1 appends.
func (s *Service) AddComponent(ctx context.Context, key component.Key, typ string) error {
	return s.withEntry(ctx, key.Resource, func(e *entry) error {
		return s.addComponent(e, key.Index, typ, 0)
	})
}

func (s *Service) addComponent(e *entry, index int, typ string, undoGroupID uint64) error {
	def, err := s.registry.Latest(typ)
	if err != nil {
		return fmt.Errorf("add component %q: %w", typ, err)
	}
	proto, err := s.registry.Prototype(def.Type, def.Version)
	if err != nil {
		return err
	}
	path, err := entity.ComponentPath(index)
	if err != nil {
		return err
	}
	if _, err := s.apply(e, patch.Add(path, proto), undoGroupID); err != nil {
		return fmt.Errorf("add component %s at %s#%d: %w", def.Token(), e.ent.Resource(), index, err)
	}
	s.logger.Debug("added component",
		zap.String("resource", e.ent.Resource()),
		zap.Int("index", index),
		zap.String("type", def.Token()))
	return nil
}

// RemoveComponent removes the component at key.
func (s *Service) RemoveComponent(ctx context.Context, key component.Key) error {
	return s.withEntry(ctx, key.Resource, func(e *entry) error {
		return s.removeComponent(e, key.Index, 0)
	})
}

func (s *Service) removeComponent(e *entry, index int, undoGroupID uint64) error {
	path, err := entity.ComponentPath(index)
	if err != nil {
		return err
	}
	if _, err := s.apply(e, patch.Remove(path), undoGroupID); err != nil {
		return fmt.Errorf("remove component %s#%d: %w", e.ent.Resource(), index, err)
	}
	return nil
}

// ReplaceComponent swaps the component at key for a new component of typ.
// Both steps share one fresh undo group and are undone together. If the
// removal fails the inserted component is taken out again and leaves no
// history behind.
func (s *Service) ReplaceComponent(ctx context.Context, key component.Key, typ string) error {
	return s.withEntry(ctx, key.Resource, func(e *entry) error {
		if key.Index < 0 || key.Index >= e.ent.Document().ComponentCount() {
			return fmt.Errorf("replace component %s: %w", key, patch.ErrIndexOutOfRange)
		}
		group := s.NewUndoGroupID()
		if err := s.addComponent(e, key.Index, typ, group); err != nil {
			return err
		}
		if err := s.removeComponent(e, key.Index+1, group); err != nil {
			if _, undoErr := e.ent.Undo(); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			e.ent.DiscardRedo()
			return err
		}
		return nil
	})
}

// CopyComponent inserts a copy of the component at src before dst.
// Copying onto the same index does nothing.
func (s *Service) CopyComponent(ctx context.Context, resource string, src, dst int) error {
	if src == dst {
		return nil
	}
	return s.withEntry(ctx, resource, func(e *entry) error {
		from, to, err := componentPaths(src, dst)
		if err != nil {
			return err
		}
		if _, err := s.apply(e, patch.Copy(from, to), 0); err != nil {
			return fmt.Errorf("copy component %s#%d to %d: %w", resource, src, dst, err)
		}
		return nil
	})
}

// MoveComponent moves the component at src so that it ends up at dst.
// Moving onto the same index does nothing.
func (s *Service) MoveComponent(ctx context.Context, resource string, src, dst int) error {
	if src == dst {
		return nil
	}
	return s.withEntry(ctx, resource, func(e *entry) error {
		from, to, err := componentPaths(src, dst)
		if err != nil {
			return err
		}
		if _, err := s.apply(e, patch.Move(from, to), 0); err != nil {
			return fmt.Errorf("move component %s#%d to %d: %w", resource, src, dst, err)
		}
		return nil
	})
}

func componentPaths(src, dst int) (pointer.Path, pointer.Path, error) {
	from, err := entity.ComponentPath(src)
	if err != nil {
		return pointer.Path{}, pointer.Path{}, err
	}
	to, err := entity.ComponentPath(dst)
	if err != nil {
		return pointer.Path{}, pointer.Path{}, err
	}
	return from, to, nil
}

// SetProperty writes value to the property at propertyPath of the
// component at key. With insert the property is added, otherwise an
// existing property is replaced.
func (s *Service) SetProperty(ctx context.Context, key component.Key, propertyPath string, value any, insert bool) error {
	prop, err := parseProperty(propertyPath)
	if err != nil {
		return err
	}
	v, err := node.FromValue(value)
	if err != nil {
		return fmt.Errorf("set %s%s: %w", key, prop, err)
	}

	return s.withEntry(ctx, key.Resource, func(e *entry) error {
		path, err := entity.PropertyPath(key.Index, prop)
		if err != nil {
			return err
		}
		op := patch.Replace(path, v)
		if insert {
			op = patch.Add(path, v)
		}
		if _, err := s.apply(e, op, 0); err != nil {
			return fmt.Errorf("set %s%s: %w", key, prop, err)
		}
		return nil
	})
}

// GetProperty returns a copy of the property at propertyPath of the
// component at key.
func (s *Service) GetProperty(ctx context.Context, key component.Key, propertyPath string) (*node.Node, error) {
	prop, err := parseProperty(propertyPath)
	if err != nil {
		return nil, err
	}
	var result *node.Node
	err = s.withEntry(ctx, key.Resource, func(e *entry) error {
		v, err := e.ent.Document().ComponentProperty(key.Index, prop)
		if err != nil {
			return err
		}
		result = v.Clone()
		return nil
	})
	return result, err
}

// parseProperty accepts property paths with or without a leading "/".
func parseProperty(path string) (pointer.Path, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return pointer.Parse(path)
}

// ComponentType returns the type name and version of the component at key.
func (s *Service) ComponentType(ctx context.Context, key component.Key) (string, int, error) {
	var (
		typ     string
		version int
	)
	err := s.withEntry(ctx, key.Resource, func(e *entry) error {
		var err error
		typ, version, err = e.ent.Document().ComponentType(key.Index)
		return err
	})
	return typ, version, err
}

// ComponentCount returns the number of components of resource.
func (s *Service) ComponentCount(ctx context.Context, resource string) (int, error) {
	var n int
	err := s.withEntry(ctx, resource, func(e *entry) error {
		n = e.ent.Document().ComponentCount()
		return nil
	})
	return n, err
}

// ComponentsOfType returns the keys of every component of typ in
// resource, in document order.
func (s *Service) ComponentsOfType(ctx context.Context, resource, typ string) ([]component.Key, error) {
	var keys []component.Key
	err := s.withEntry(ctx, resource, func(e *entry) error {
		doc := e.ent.Document()
		for i := 0; i < doc.ComponentCount(); i++ {
			t, _, err := doc.ComponentType(i)
			if err != nil {
				return err
			}
			if t == typ {
				keys = append(keys, component.Key{Resource: resource, Index: i})
			}
		}
		return nil
	})
	return keys, err
}

// Tags returns the component types present in resource, sorted.
func (s *Service) Tags(ctx context.Context, resource string) ([]string, error) {
	var tags []string
	err := s.withEntry(ctx, resource, func(e *entry) error {
		tags = e.ent.Document().Tags()
		return nil
	})
	return tags, err
}

// HasTag reports whether resource has a component of typ.
func (s *Service) HasTag(ctx context.Context, resource, typ string) (bool, error) {
	var ok bool
	err := s.withEntry(ctx, resource, func(e *entry) error {
		ok = e.ent.Document().HasTag(typ)
		return nil
	})
	return ok, err
}

// Undo reverts the latest change group of resource. It reports false
// when there was nothing to undo.
func (s *Service) Undo(ctx context.Context, resource string) (bool, error) {
	return s.unwind(ctx, resource, "undo", (*entity.Entity).Undo, entity.ErrNothingToUndo)
}

// Redo reapplies the latest undone change group of resource. It reports
// false when there was nothing to redo.
func (s *Service) Redo(ctx context.Context, resource string) (bool, error) {
	return s.unwind(ctx, resource, "redo", (*entity.Entity).Redo, entity.ErrNothingToRedo)
}

func (s *Service) unwind(
	ctx context.Context,
	resource, direction string,
	step func(*entity.Entity) ([]entity.PatchSummary, error),
	empty error,
) (bool, error) {
	var changed bool
	err := s.withEntry(ctx, resource, func(e *entry) error {
		summaries, err := step(e.ent)
		switch {
		case errors.Is(err, empty):
			s.metrics.HistoryTotal.WithLabelValues(direction, "empty").Inc()
			return nil
		case err != nil:
			s.metrics.HistoryTotal.WithLabelValues(direction, "failed").Inc()
			s.logger.Warn(direction+" failed", zap.String("resource", resource), zap.Error(err))
			return err
		}
		s.metrics.HistoryTotal.WithLabelValues(direction, "applied").Inc()
		s.logger.Debug(direction,
			zap.String("resource", resource),
			zap.Int("operations", len(summaries)))
		changed = true
		return nil
	})
	return changed, err
}

// UndoCount returns the number of undo entries of resource.
func (s *Service) UndoCount(ctx context.Context, resource string) (int, error) {
	var n int
	err := s.withEntry(ctx, resource, func(e *entry) error {
		n = e.ent.History().UndoCount()
		return nil
	})
	return n, err
}

// RedoCount returns the number of redo entries of resource.
func (s *Service) RedoCount(ctx context.Context, resource string) (int, error) {
	var n int
	err := s.withEntry(ctx, resource, func(e *entry) error {
		n = e.ent.History().RedoCount()
		return nil
	})
	return n, err
}
