package storage

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/constants"
)

// Watch observes the backing file and reports keys whose value differs from
// the previous snapshot. Bursts of events are debounced.
func (f *FileBackend) Watch(ctx context.Context, fn func(key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: atomic renames replace the inode.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return err
	}

	prev, err := f.snapshot()
	if err != nil {
		log.WithError(err).Warn("storage watch: initial snapshot failed")
		prev = map[string]string{}
	}
	st := &fileWatch{backend: f, prev: prev, fn: fn}
	defer st.stop()

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			st.schedule(ctx, constants.StorageWatchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("storage watch error")
		}
	}
}

// fileWatch is the debounced diff state of one Watch call. Once stopped, or
// once the watch context is done, no further callbacks run.
type fileWatch struct {
	backend *FileBackend
	fn      func(key string)

	mu      sync.Mutex
	prev    map[string]string
	timer   *time.Timer
	stopped bool
}

func (w *fileWatch) schedule(ctx context.Context, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(delay, func() { w.check(ctx) })
}

// check runs under mu, so stop waits for a callback already in progress.
func (w *fileWatch) check(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || ctx.Err() != nil {
		return
	}
	cur, err := w.backend.snapshot()
	if err != nil {
		log.WithError(err).Debug("storage watch: snapshot failed")
		return
	}
	for _, key := range diffKeys(w.prev, cur) {
		w.fn(key)
	}
	w.prev = cur
}

func (w *fileWatch) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func diffKeys(prev, cur map[string]string) []string {
	var keys []string
	for k, v := range cur {
		if old, ok := prev[k]; !ok || old != v {
			keys = append(keys, k)
		}
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
