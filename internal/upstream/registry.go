package upstream

import (
	"context"
	"sync"

	apperrors "surveydesk-go/internal/errors"
)

type handle struct {
	id      uint64
	cancel  context.CancelCauseFunc
	surface string
}

// Registry tracks cancellable in-flight requests by key, and groups keys by
// UI surface so a surface teardown can abort everything it started.
// At most one handle is live per key.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	handles  map[string]handle
	surfaces map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		handles:  make(map[string]handle),
		surfaces: make(map[string][]string),
	}
}

// Register installs cancel under key. A handle already registered under key
// is canceled with ErrSuperseded before the new one is stored. The returned
// id is passed to Release.
func (r *Registry) Register(key, surface string, cancel context.CancelCauseFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[key]; ok {
		old.cancel(apperrors.ErrSuperseded)
		if old.surface != surface {
			r.unlinkLocked(old.surface, key)
		}
	}

	r.nextID++
	id := r.nextID
	r.handles[key] = handle{id: id, cancel: cancel, surface: surface}
	if surface != "" && !containsKey(r.surfaces[surface], key) {
		r.surfaces[surface] = append(r.surfaces[surface], key)
	}
	return id
}

// Release drops key if it still belongs to the handle identified by id.
// A superseded request releasing late leaves its successor in place.
func (r *Registry) Release(key string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	if !ok || h.id != id {
		return false
	}
	r.removeLocked(key, h)
	return true
}

// Cancel aborts and deregisters key. It reports whether a handle existed.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	if !ok {
		return false
	}
	h.cancel(apperrors.ErrAborted)
	r.removeLocked(key, h)
	return true
}

// CancelSurface aborts every key associated with surface and clears the
// association. It returns how many handles were canceled.
func (r *Registry) CancelSurface(surface string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.surfaces[surface]
	delete(r.surfaces, surface)

	n := 0
	for _, key := range keys {
		h, ok := r.handles[key]
		if !ok {
			continue
		}
		h.cancel(apperrors.ErrAborted)
		delete(r.handles, key)
		n++
	}
	return n
}

// CancelAll aborts every live handle. It returns how many were canceled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.handles)
	for _, h := range r.handles {
		h.cancel(apperrors.ErrAborted)
	}
	r.handles = make(map[string]handle)
	r.surfaces = make(map[string][]string)
	return n
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// SurfaceKeys returns the keys currently associated with surface.
func (r *Registry) SurfaceKeys(surface string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.surfaces[surface]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

func (r *Registry) removeLocked(key string, h handle) {
	delete(r.handles, key)
	r.unlinkLocked(h.surface, key)
}

func (r *Registry) unlinkLocked(surface, key string) {
	if surface == "" {
		return
	}
	keys := r.surfaces[surface]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(r.surfaces, surface)
	} else {
		r.surfaces[surface] = keys
	}
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
