// Package service manages the entities of a project: it loads them from a
// store on first use, edits them through component-level verbs, and saves
// the ones that changed.
//
// Mutations through the Service are serialized per resource. Change
// observers run while that resource is locked, so an observer must not call
// back into the Service for the same resource on the same goroutine.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/entitydoc/internal/accessor"
	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/document/migrate"
	"github.com/dshills/entitydoc/internal/document/node"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/notify"
	"github.com/dshills/entitydoc/internal/store"
)

// DefaultSaveConcurrency bounds concurrent store writes in SaveModified.
const DefaultSaveConcurrency = 4

// entry is one loaded entity.
type entry struct {
	mu  sync.Mutex
	ent *entity.Entity

	// saved is the fingerprint of the last stored serialization.
	// Zero means the entity has never been stored in its current form.
	saved uint64
}

// Service owns every loaded entity.
type Service struct {
	store     store.Store
	registry  *component.Registry
	notifier  *notify.Notifier
	ownsNotif bool
	accessors *accessor.Cache
	logger    *zap.Logger
	metrics   *Metrics

	maxHistory      int
	saveConcurrency int

	groupID atomic.Uint64
	loads   singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	watcher *store.Watcher
	closed  bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier publishes entity changes on n instead of a private notifier.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithMaxHistory bounds the undo and redo stacks of every entity.
func WithMaxHistory(n int) Option {
	return func(s *Service) {
		s.maxHistory = n
	}
}

// WithSaveConcurrency bounds concurrent writes during SaveModified.
func WithSaveConcurrency(n int) Option {
	return func(s *Service) {
		s.saveConcurrency = n
	}
}

// New creates a service over st. Components are validated against registry;
// a nil registry accepts no component types.
func New(st store.Store, registry *component.Registry, opts ...Option) *Service {
	if registry == nil {
		registry = component.NewRegistry()
	}
	s := &Service{
		store:           st,
		registry:        registry,
		logger:          zap.NewNop(),
		maxHistory:      entity.DefaultMaxHistory,
		saveConcurrency: DefaultSaveConcurrency,
		entries:         make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.New(notify.WithLogger(s.logger))
		s.ownsNotif = true
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.saveConcurrency < 1 {
		s.saveConcurrency = DefaultSaveConcurrency
	}
	s.logger = s.logger.Named("entities")
	s.accessors = accessor.NewCache(s.notifier, registry)
	return s
}

// Registry returns the component schema registry.
func (s *Service) Registry() *component.Registry { return s.registry }

// Notifier returns the notifier every entity publishes its changes to.
func (s *Service) Notifier() *notify.Notifier { return s.notifier }

// Metrics returns the service metrics.
func (s *Service) Metrics() *Metrics { return s.metrics }

// NewUndoGroupID returns a fresh undo group id. Ids start at 1; 0 means
// ungrouped.
func (s *Service) NewUndoGroupID() uint64 {
	return s.groupID.Add(1)
}

// Acquire returns the entity for resource, loading it from the store on
// first use. A resource with no stored document starts as an empty entity
// and is saved by the next SaveModified.
//
// The returned entity is shared; mutate it only through the Service.
func (s *Service) Acquire(ctx context.Context, resource string) (*entity.Entity, error) {
	e, err := s.acquire(ctx, resource)
	if err != nil {
		return nil, err
	}
	return e.ent, nil
}

func (s *Service) acquire(ctx context.Context, resource string) (*entry, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := s.entries[resource]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	v, err, _ := s.loads.Do(resource, func() (any, error) {
		e, err := s.load(ctx, resource)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.entries[resource]; ok {
			return existing, nil
		}
		s.entries[resource] = e
		s.metrics.LoadedEntities.Set(float64(len(s.entries)))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (s *Service) load(ctx context.Context, resource string) (*entry, error) {
	if err := store.ValidateResource(resource); err != nil {
		return nil, err
	}

	data, err := s.store.Load(ctx, resource)
	switch {
	case errors.Is(err, store.ErrNotFound):
		doc, err := entity.NewDocument(resource, nil, s.registry)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("created entity", zap.String("resource", resource))
		return &entry{ent: s.newEntity(doc)}, nil
	case err != nil:
		return nil, fmt.Errorf("load entity %s: %w", resource, err)
	}

	raw, migrated, err := migrate.Entity(data)
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", resource, err)
	}
	root, err := node.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", resource, err)
	}
	doc, err := entity.NewDocument(resource, root, s.registry)
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", resource, err)
	}

	e := &entry{ent: s.newEntity(doc)}
	if !migrated {
		if e.saved, err = fingerprint(doc); err != nil {
			return nil, err
		}
	}
	s.logger.Debug("loaded entity",
		zap.String("resource", resource),
		zap.Int("components", doc.ComponentCount()),
		zap.Bool("migrated", migrated))
	return e, nil
}

func (s *Service) newEntity(doc *entity.Document) *entity.Entity {
	return entity.New(doc,
		entity.WithPublisher(s.notifier),
		entity.WithMaxHistory(s.maxHistory))
}

// withEntry runs fn with the entity of resource locked.
func (s *Service) withEntry(ctx context.Context, resource string, fn func(e *entry) error) error {
	e, err := s.acquire(ctx, resource)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e)
}

// IsLoaded reports whether resource is in memory.
func (s *Service) IsLoaded(resource string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[resource]
	return ok
}

// Loaded returns the resources in memory, sorted.
func (s *Service) Loaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]string, 0, len(s.entries))
	for r := range s.entries {
		result = append(result, r)
	}
	sort.Strings(result)
	return result
}

// List returns every stored resource.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// Unload forgets the in-memory entity of resource, discarding unsaved
// changes. Its undo and redo history is cleared, so holders of the entity
// returned by Acquire can no longer undo into it. It reports whether the
// entity was loaded.
func (s *Service) Unload(resource string) bool {
	s.mu.Lock()
	e, ok := s.entries[resource]
	delete(s.entries, resource)
	s.metrics.LoadedEntities.Set(float64(len(s.entries)))
	s.mu.Unlock()

	if !ok {
		return false
	}
	e.mu.Lock()
	e.ent.ClearHistory()
	e.mu.Unlock()

	s.accessors.Drop(resource)
	s.logger.Debug("unloaded entity", zap.String("resource", resource))
	return true
}

// Delete unloads resource and removes its stored document.
func (s *Service) Delete(ctx context.Context, resource string) error {
	s.Unload(resource)
	if err := s.store.Delete(ctx, resource); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete entity %s: %w", resource, err)
	}
	s.logger.Info("deleted entity", zap.String("resource", resource))
	return nil
}

// Copy stores a copy of the document of src under dst. Unsaved changes of
// src are included. A loaded dst is unloaded first.
func (s *Service) Copy(ctx context.Context, src, dst string) error {
	if err := store.ValidateResource(dst); err != nil {
		return err
	}
	var data []byte
	err := s.withEntry(ctx, src, func(e *entry) error {
		var err error
		data, err = e.ent.Document().MarshalJSON()
		return err
	})
	if err != nil {
		return err
	}
	s.Unload(dst)
	if err := s.store.Save(ctx, dst, data); err != nil {
		return fmt.Errorf("copy entity %s to %s: %w", src, dst, err)
	}
	return nil
}

// Rename moves the document of src to dst, dropping the history of src.
func (s *Service) Rename(ctx context.Context, src, dst string) error {
	if err := s.Copy(ctx, src, dst); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}

// Accessor returns a cached accessor for the component at key. Writes made
// through the accessor are not serialized with Service mutations.
func (s *Service) Accessor(ctx context.Context, key component.Key) (*accessor.Accessor, error) {
	var a *accessor.Accessor
	err := s.withEntry(ctx, key.Resource, func(e *entry) error {
		var err error
		a, err = s.accessors.Get(e.ent, key.Index)
		return err
	})
	return a, err
}

// Watch unloads entities whose files are removed from fs by other
// processes. Only one watcher runs at a time.
func (s *Service) Watch(fs *store.FileStore) error {
	w, err := store.NewWatcher(fs, s.onWatchEvent, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = w.Close()
		return ErrClosed
	}
	prev := s.watcher
	s.watcher = w
	s.mu.Unlock()

	// Closed after unlocking: its handler takes s.mu.
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (s *Service) onWatchEvent(ev store.WatchEvent) {
	if ev.Op != store.WatchRemoved {
		return
	}
	if s.Unload(ev.Resource) {
		s.logger.Info("entity file removed, unloaded entity", zap.String("resource", ev.Resource))
	}
}

// Close stops the watcher, drops every entity with its history and closes
// the store.
// Unsaved changes are lost; call SaveModified first.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.ent.ClearHistory()
		e.mu.Unlock()
	}

	var errs []error
	if w != nil {
		errs = append(errs, w.Close())
	}
	s.accessors.Close()
	if s.ownsNotif {
		s.notifier.Close()
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

func fingerprint(doc *entity.Document) (uint64, error) {
	data, err := doc.MarshalJSON()
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
