package storage

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/config"
)

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (KV, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.Path)
	case "bbolt":
		return NewBoltBackend(cfg.Path)
	case "redis":
		rb, err := NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		if err := rb.Initialize(ctx); err != nil {
			_ = rb.Close()
			return nil, err
		}
		return rb, nil
	default:
		return nil, &ErrNotSupported{Operation: "backend " + cfg.Backend}
	}
}

// Label returns a normalized label for kv.
func Label(kv KV) string {
	switch kv.(type) {
	case *MemoryBackend:
		return "memory"
	case *FileBackend:
		return "file"
	case *BoltBackend:
		return "bbolt"
	case *RedisBackend:
		return "redis"
	default:
		return "unknown"
	}
}

// MustOpen is Open that logs and exits on failure; intended for main packages.
func MustOpen(ctx context.Context, cfg config.StorageConfig) KV {
	kv, err := Open(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("backend", cfg.Backend).Fatal("failed to open storage")
	}
	log.WithField("backend", Label(kv)).Info("storage ready")
	return kv
}
