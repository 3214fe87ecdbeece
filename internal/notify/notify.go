// Package notify broadcasts component change descriptors to subscribers.
//
// Delivery is synchronous and ordered: every change is handed to every
// matching observer, in subscription order, before the next change is
// delivered. Changes published from inside an observer are queued behind the
// change being delivered, so observers always see changes in commit order.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/entitydoc/internal/component"
)

// Observer is called for each delivered change.
type Observer func(change component.Change)

// anyIndex matches every component of a resource.
const anyIndex = -1

// Subscription represents an active observer subscription.
type Subscription struct {
	id       string
	resource string // empty matches every resource
	index    int
	observer Observer
	notifier *Notifier
	active   atomic.Bool
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Active reports whether the subscription still receives changes.
func (s *Subscription) Active() bool { return s.active.Load() }

// Unsubscribe removes this subscription. It takes effect immediately, even
// for a change that is being delivered.
func (s *Subscription) Unsubscribe() {
	if s.active.CompareAndSwap(true, false) && s.notifier != nil {
		s.notifier.unsubscribe(s)
	}
}

func (s *Subscription) matches(change component.Change) bool {
	if s.resource == "" {
		return true
	}
	if s.resource != change.Key.Resource {
		return false
	}
	return s.index == anyIndex || s.index == change.Key.Index
}

// Notifier manages change subscriptions.
type Notifier struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool

	deliverMu  sync.Mutex
	queue      []component.Change
	delivering bool

	delivered atomic.Uint64
	logger    *zap.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used to report observer panics.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a new Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers an observer for every change.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add("", anyIndex, observer)
}

// SubscribeResource registers an observer for changes to any component of resource.
func (n *Notifier) SubscribeResource(resource string, observer Observer) *Subscription {
	return n.add(resource, anyIndex, observer)
}

// SubscribeComponent registers an observer for changes addressed to key.
func (n *Notifier) SubscribeComponent(key component.Key, observer Observer) *Subscription {
	return n.add(key.Resource, key.Index, observer)
}

func (n *Notifier) add(resource string, index int, observer Observer) *Subscription {
	sub := &Subscription{
		id:       uuid.NewString(),
		resource: resource,
		index:    index,
		observer: observer,
		notifier: n,
	}
	sub.active.Store(true)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		sub.active.Store(false)
		return sub
	}
	n.subs = append(n.subs, sub)
	return sub
}

// Publish delivers changes to all matching observers, in order. When called
// from inside an observer, or while another goroutine is delivering, the
// changes are queued and delivered by the goroutine already delivering.
func (n *Notifier) Publish(changes ...component.Change) {
	if len(changes) == 0 {
		return
	}
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	n.deliverMu.Lock()
	n.queue = append(n.queue, changes...)
	if n.delivering {
		n.deliverMu.Unlock()
		return
	}
	n.delivering = true
	for len(n.queue) > 0 {
		next := n.queue[0]
		n.queue = n.queue[1:]
		n.deliverMu.Unlock()

		n.deliver(next)

		n.deliverMu.Lock()
	}
	n.queue = nil
	n.delivering = false
	n.deliverMu.Unlock()
}

// Delivered returns how many changes have been delivered.
func (n *Notifier) Delivered() uint64 {
	return n.delivered.Load()
}

// Len returns the number of active subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Close drops every subscription. Later publishes are ignored. It is safe
// to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, sub := range n.subs {
		sub.active.Store(false)
	}
	n.subs = nil
}

func (n *Notifier) unsubscribe(target *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.subs {
		if sub == target {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}

// deliver sends one change to the observers subscribed when delivery starts.
func (n *Notifier) deliver(change component.Change) {
	n.mu.RLock()
	matching := make([]*Subscription, 0, len(n.subs))
	for _, sub := range n.subs {
		if sub.matches(change) {
			matching = append(matching, sub)
		}
	}
	n.mu.RUnlock()

	for _, sub := range matching {
		if sub.Active() {
			n.call(sub, change)
		}
	}
	n.delivered.Add(1)
}

func (n *Notifier) call(sub *Subscription, change component.Change) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("change observer panicked",
				zap.String("subscription", sub.id),
				zap.Stringer("key", change.Key),
				zap.String("property_path", change.PropertyPath),
				zap.Any("panic", r),
			)
		}
	}()
	sub.observer(change)
}
