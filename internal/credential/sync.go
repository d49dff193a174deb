package credential

import (
	"context"

	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/storage"
)

// Sync reconciles the cache with the durable value for key after another
// process wrote it. A change is published and mirrored; an unchanged value
// is ignored. Keys that are not credential slots are ignored.
func (s *Store) Sync(ctx context.Context, key string) bool {
	slot, ok := SlotForKey(key)
	if !ok {
		return false
	}

	v, present, err := s.durable.Load(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("credential sync read failed")
		return false
	}
	if present && !Validate(v) {
		present, v = false, ""
	}
	next := entry{value: v, present: present}

	s.mu.Lock()
	cur, known := s.cache[slot]
	if known && cur == next {
		s.mu.Unlock()
		return false
	}
	s.cache[slot] = next
	s.mu.Unlock()

	if s.mirror != nil {
		if present {
			_ = s.mirror.Save(ctx, key, v)
		} else {
			_ = s.mirror.Remove(ctx, key)
		}
	}
	s.publish(ctx, slot, next)
	log.WithFields(log.Fields{"slot": slot, "present": present}).Debug("credential changed externally")
	return true
}

// Watch follows changes reported by w until ctx is done.
func (s *Store) Watch(ctx context.Context, w storage.Watcher) error {
	return w.Watch(ctx, func(key string) {
		s.Sync(ctx, key)
	})
}
