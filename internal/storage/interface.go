package storage

import (
	"context"
	"errors"
)

// KV is the durable key/value surface the credential store persists into.
// Values are opaque strings; absence is reported as *ErrNotFound.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op when the key is absent.
	Delete(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by backends that can observe writes made by other
// processes (or other handles) sharing the same storage.
// Watch blocks until ctx is done, calling fn with every changed key.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

// ErrNotFound is returned when a key is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsNotFound reports whether err is an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// ErrNotSupported is returned when an operation is not supported
type ErrNotSupported struct {
	Operation string
}

func (e *ErrNotSupported) Error() string {
	return "operation not supported: " + e.Operation
}
