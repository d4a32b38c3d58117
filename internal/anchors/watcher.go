package anchors

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JDHayesBC/Awareness-sub005/internal/logging"
)

// Watcher debounces on-disk changes to the anchors directory and triggers a
// Sync, so anchors stay current between explicit sync calls (§4.2: "detect
// on-disk changes ... in addition to the explicit sync(directory) operation
// itself"). Grounded on the pack's fsnotify directory-watch idiom
// (teradata-labs-loom's internal/artifacts.Watcher).
type Watcher struct {
	store      *Store
	fsw        *fsnotify.Watcher
	debounceMs int

	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
}

// NewWatcher creates a watcher for s's directory. debounceMs defaults to 500.
func NewWatcher(s *Store, debounceMs int) (*Watcher, error) {
	if debounceMs <= 0 {
		debounceMs = 500
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{store: s, fsw: fsw, debounceMs: debounceMs, stopCh: make(chan struct{}), doneCh: make(chan struct{})}, nil
}

// Start begins watching. It runs the watch loop in a goroutine and returns
// immediately.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.store.directory); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			w.debounce(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Log.WithError(err).Warn("anchors watcher error")
		}
	}
}

func (w *Watcher) debounce(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(time.Duration(w.debounceMs)*time.Millisecond, func() {
		if _, err := w.store.Sync(ctx, false); err != nil {
			logging.Log.WithError(err).Warn("anchors debounced sync failed")
		}
	})
}
