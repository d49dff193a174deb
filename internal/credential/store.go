package credential

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/events"
	"surveydesk-go/internal/logging"
	"surveydesk-go/internal/monitoring"
)

type entry struct {
	value   string
	present bool
}

// Store holds the user and visitor credentials. The durable channel is the
// source of truth; the in-memory cache is repaired from it on every Get and
// only used to suppress redundant writes.
type Store struct {
	durable Channel
	mirror  Channel
	hub     events.Dispatcher

	mu    sync.Mutex
	cache map[Slot]entry
	// writes between the cache update and the end of write-through
	pending map[Slot]int

	migrate sync.Once
}

type migratingKey struct{}

// NewStore creates a store. mirror and hub may be nil.
func NewStore(durable Channel, mirror Channel, hub events.Dispatcher) *Store {
	return &Store{
		durable: durable,
		mirror:  mirror,
		hub:     hub,
		cache:   make(map[Slot]entry),
		pending: make(map[Slot]int),
	}
}

// Get returns the slot's credential. Invalid stored values are removed from
// both channels and reported as absent. A cached value that the durable
// channel no longer holds is published as a change.
func (s *Store) Get(ctx context.Context, slot Slot) (string, bool) {
	s.ensureMigrated(ctx)

	s.mu.Lock()
	if s.pending[slot] > 0 {
		// the durable channel is behind the cache until Set returns
		e := s.cache[slot]
		s.mu.Unlock()
		return e.value, e.present
	}
	s.mu.Unlock()

	key := slot.Key()
	v, ok, err := s.durable.Load(ctx, key)
	if err != nil {
		log.WithError(err).WithField("slot", slot).Warn("credential read failed, using cached value")
		s.mu.Lock()
		e := s.cache[slot]
		s.mu.Unlock()
		return e.value, e.present
	}

	if ok && !Validate(v) {
		log.WithField("slot", slot).Warn("discarding invalid stored credential")
		s.removeFromChannels(ctx, key)
		ok = false
	}
	if !ok {
		v = ""
	}
	next := entry{value: v, present: ok}

	s.mu.Lock()
	if s.pending[slot] > 0 {
		e := s.cache[slot]
		s.mu.Unlock()
		return e.value, e.present
	}
	cur, known := s.cache[slot]
	s.cache[slot] = next
	s.mu.Unlock()

	if known && cur != next {
		s.publish(ctx, slot, next)
	}
	return v, ok
}

// ensureMigrated runs the legacy migration once. Concurrent callers wait for
// it; change handlers running inside it receive a marked ctx and pass through.
func (s *Store) ensureMigrated(ctx context.Context) {
	if ctx.Value(migratingKey{}) != nil {
		return
	}
	s.migrate.Do(func() {
		s.migrateLegacy(context.WithValue(ctx, migratingKey{}, true))
	})
}

// Set writes value into slot; an empty or invalid value clears it. Writing
// the value already cached is a no-op.
func (s *Store) Set(ctx context.Context, slot Slot, value string) error {
	next := entry{value: value, present: true}
	if !Validate(value) {
		if value != "" {
			log.WithField("slot", slot).Warn("refusing to store invalid credential, clearing slot")
		}
		next = entry{}
	}

	s.mu.Lock()
	if cur, known := s.cache[slot]; known && cur == next {
		s.mu.Unlock()
		return nil
	}
	s.cache[slot] = next
	s.pending[slot]++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.pending[slot]--
		s.mu.Unlock()
	}()

	s.publish(ctx, slot, next)

	key := slot.Key()
	if !next.present {
		monitoring.CredentialWritesTotal.WithLabelValues(string(slot), "clear").Inc()
		return s.removeFromChannels(ctx, key)
	}

	monitoring.CredentialWritesTotal.WithLabelValues(string(slot), "set").Inc()
	log.WithFields(log.Fields{"slot": slot, "token": logging.MaskToken(value)}).Debug("credential updated")

	var errs []error
	if err := s.durable.Save(ctx, key, value); err != nil {
		errs = append(errs, err)
	}
	if s.mirror != nil {
		if err := s.mirror.Save(ctx, key, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear removes the slot's credential.
func (s *Store) Clear(ctx context.Context, slot Slot) error {
	return s.Set(ctx, slot, "")
}

// ClearAll clears both slots independently.
func (s *Store) ClearAll(ctx context.Context) error {
	var errs []error
	for _, slot := range Slots() {
		if err := s.Clear(ctx, slot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mirror returns the mirror channel, or nil.
func (s *Store) Mirror() Channel { return s.mirror }

func (s *Store) publish(ctx context.Context, slot Slot, e entry) {
	if s.hub == nil {
		return
	}
	s.hub.Dispatch(ctx, slot.Kind(), Change{Slot: slot, Present: e.present, Value: e.value})
}

func (s *Store) removeFromChannels(ctx context.Context, key string) error {
	var errs []error
	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.durable.Remove(ctx, key); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// migrateLegacy moves the single-credential value of older releases into the
// visitor slot when that slot is empty. The legacy entries are always removed.
func (s *Store) migrateLegacy(ctx context.Context) {
	legacy, found := s.loadLegacy(ctx)
	if !found {
		return
	}

	defer func() {
		if err := s.durable.Remove(ctx, constants.LegacyTokenKey); err != nil {
			log.WithError(err).Warn("failed to remove legacy credential")
		}
		if s.mirror != nil {
			_ = s.mirror.Remove(ctx, constants.LegacyTokenCookie)
		}
	}()

	if !Validate(legacy) {
		log.Debug("legacy credential invalid, dropping")
		return
	}
	if v, ok, err := s.durable.Load(ctx, SlotVisitor.Key()); err == nil && ok && Validate(v) {
		log.Debug("visitor credential present, legacy credential dropped")
		return
	}
	if err := s.Set(ctx, SlotVisitor, legacy); err != nil {
		log.WithError(err).Warn("legacy credential migration incomplete")
		return
	}
	log.Info("migrated legacy credential into visitor slot")
}

func (s *Store) loadLegacy(ctx context.Context) (string, bool) {
	if v, ok, err := s.durable.Load(ctx, constants.LegacyTokenKey); err == nil && ok {
		return v, true
	}
	if s.mirror != nil {
		if v, ok, err := s.mirror.Load(ctx, constants.LegacyTokenCookie); err == nil && ok {
			return v, true
		}
	}
	return "", false
}
