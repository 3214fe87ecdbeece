package accessor

import (
	"sync"

	"github.com/dshills/entitydoc/internal/component"
	"github.com/dshills/entitydoc/internal/entity"
	"github.com/dshills/entitydoc/internal/notify"
)

// Cache keeps at most one valid accessor per component key. A structural
// change of a resource drops every cached accessor of that resource.
type Cache struct {
	notifier *notify.Notifier
	schemas  SchemaResolver
	sub      *notify.Subscription

	mu      sync.Mutex
	entries map[component.Key]*Accessor
}

// NewCache creates a cache whose accessors observe notifier.
func NewCache(notifier *notify.Notifier, schemas SchemaResolver) *Cache {
	c := &Cache{
		notifier: notifier,
		schemas:  schemas,
		entries:  make(map[component.Key]*Accessor),
	}
	c.sub = notifier.Subscribe(func(change component.Change) {
		if change.IsStructural() {
			c.Drop(change.Key.Resource)
		}
	})
	return c
}

// Get returns the cached accessor for the component at index, creating
// one when none is cached or the cached one is no longer valid.
func (c *Cache) Get(ent *entity.Entity, index int) (*Accessor, error) {
	key := component.Key{Resource: ent.Resource(), Index: index}

	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.entries[key]; ok && a.IsValid() {
		return a, nil
	}
	a, err := New(ent, index, c.notifier, c.schemas)
	if err != nil {
		return nil, err
	}
	c.entries[key] = a
	return a, nil
}

// Drop closes and forgets every accessor of resource.
func (c *Cache) Drop(resource string) {
	c.mu.Lock()
	var dropped []*Accessor
	for key, a := range c.entries {
		if key.Resource == resource {
			dropped = append(dropped, a)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, a := range dropped {
		a.Close()
	}
}

// Len returns the number of cached accessors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close drops every accessor and stops observing changes.
func (c *Cache) Close() {
	c.sub.Unsubscribe()

	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[component.Key]*Accessor)
	c.mu.Unlock()

	for _, a := range entries {
		a.Close()
	}
}
