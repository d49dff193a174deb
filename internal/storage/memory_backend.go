package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps values in process memory. Watchers registered on the
// same instance observe every write.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers map[int]func(string)
	nextID   int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string]string),
		watchers: make(map[int]func(string)),
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", &ErrNotFound{Key: key}
	}
	return v, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	fns := m.snapshotWatchersLocked()
	m.mu.Unlock()
	notifyAll(fns, key)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.data[key]
	delete(m.data, key)
	fns := m.snapshotWatchersLocked()
	m.mu.Unlock()
	if existed {
		notifyAll(fns, key)
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Watch registers fn until ctx is done.
func (m *MemoryBackend) Watch(ctx context.Context, fn func(key string)) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.watchers, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) snapshotWatchersLocked() []func(string) {
	if len(m.watchers) == 0 {
		return nil
	}
	out := make([]func(string), 0, len(m.watchers))
	for _, fn := range m.watchers {
		out = append(out, fn)
	}
	return out
}

func notifyAll(fns []func(string), key string) {
	for _, fn := range fns {
		fn(key)
	}
}
