package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Save stores the entity of resource if it changed since it was last
// stored. It reports whether anything was written.
func (s *Service) Save(ctx context.Context, resource string) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[resource]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotLoaded, resource)
	}
	return s.save(ctx, resource, e)
}

func (s *Service) save(ctx context.Context, resource string, e *entry) (bool, error) {
	e.mu.Lock()
	data, err := e.ent.Document().MarshalJSON()
	saved := e.saved
	e.mu.Unlock()
	if err != nil {
		return false, err
	}

	sum := xxhash.Sum64(data)
	if sum == saved {
		s.metrics.SavesTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if err := s.store.Save(ctx, resource, data); err != nil {
		s.metrics.SavesTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("save entity %s: %w", resource, err)
	}

	e.mu.Lock()
	e.saved = sum
	e.mu.Unlock()
	s.metrics.SavesTotal.WithLabelValues("saved").Inc()
	s.logger.Debug("saved entity", zap.String("resource", resource), zap.Int("bytes", len(data)))
	return true, nil
}

// SaveModified stores every loaded entity whose serialization changed
// since it was last stored, writing up to the configured number of
// entities concurrently. It returns how many entities were written and
// the first error; entities after a failure may still be written.
func (s *Service) SaveModified(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		s.metrics.SaveDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	pending := make(map[string]*entry, len(s.entries))
	for r, e := range s.entries {
		pending[r] = e
	}
	s.mu.Unlock()

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.saveConcurrency)
	for resource, e := range pending {
		g.Go(func() error {
			ok, err := s.save(gctx, resource, e)
			if ok {
				written.Add(1)
			}
			return err
		})
	}
	err := g.Wait()

	n := int(written.Load())
	if n > 0 || err != nil {
		s.logger.Info("saved modified entities", zap.Int("written", n), zap.Error(err))
	}
	return n, err
}

// IsModified reports whether the entity of resource has changes that are
// not stored yet.
func (s *Service) IsModified(resource string) bool {
	s.mu.Lock()
	e, ok := s.entries[resource]
	s.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sum, err := fingerprint(e.ent.Document())
	return err != nil || sum != e.saved
}
