package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherClosed is returned when using a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// WatchOp describes what happened to a stored document on disk.
type WatchOp uint8

const (
	// WatchWritten means the document file was created or rewritten.
	WatchWritten WatchOp = iota + 1

	// WatchRemoved means the document file was removed or renamed away.
	WatchRemoved
)

// String returns the op name.
func (op WatchOp) String() string {
	switch op {
	case WatchWritten:
		return "written"
	case WatchRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// WatchEvent reports an external change to a file store document.
type WatchEvent struct {
	Resource string
	Op       WatchOp
}

// Watcher reports changes made to a FileStore's files by other processes.
// New subdirectories are watched as they appear.
type Watcher struct {
	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	store   *FileStore
	handler func(WatchEvent)
	logger  *zap.Logger

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewWatcher starts watching every directory under the store root.
// handler runs on the watcher goroutine.
func NewWatcher(s *FileStore, handler func(WatchEvent), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		store:   s,
		handler: handler,
		logger:  logger.Named("watcher"),
		closeCh: make(chan struct{}),
	}
	if err := w.watchTree(s.Root()); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	return w.fsw.Add(dir)
}

// Close stops the watcher and waits for the handler to return.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.watchTree(ev.Name); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}

	resource, ok := w.store.ResourceFor(ev.Name)
	if !ok {
		return
	}

	var op WatchOp
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = WatchRemoved
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		op = WatchWritten
	default:
		return
	}

	w.logger.Debug("document changed on disk",
		zap.String("resource", resource),
		zap.Stringer("op", op))
	if w.handler != nil {
		w.handler(WatchEvent{Resource: resource, Op: op})
	}
}
