package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind identifies one of the closed set of events carried by the hub.
type Kind string

// Event kinds. Credential changes are published per slot so observers can
// subscribe to exactly the identity track they care about.
const (
	UserCredentialChanged    Kind = "credential.user.changed"
	VisitorCredentialChanged Kind = "credential.visitor.changed"
	LanguageChanged          Kind = "language.changed"
	UserProfileChanged       Kind = "user.profile.changed"
	MemberListChanged        Kind = "member.list.changed"
)

var knownKinds = map[Kind]struct{}{
	UserCredentialChanged:    {},
	VisitorCredentialChanged: {},
	LanguageChanged:          {},
	UserProfileChanged:       {},
	MemberListChanged:        {},
}

// Valid reports whether k belongs to the closed set of kinds.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{
		UserCredentialChanged,
		VisitorCredentialChanged,
		LanguageChanged,
		UserProfileChanged,
		MemberListChanged,
	}
}

// ErrUnknownKind is returned when subscribing to a kind outside the closed set.
var ErrUnknownKind = errors.New("events: unknown event kind")

// SubscriptionID identifies a single handler registration. Zero is never issued.
type SubscriptionID uint64

// Event represents a published message on the event bus.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Dispatcher exposes the ability to publish events to the hub.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind Kind, payload any) bool
}

// Subscriber exposes subscription capabilities.
type Subscriber interface {
	Subscribe(kind Kind, handler Handler) (SubscriptionID, error)
	Unsubscribe(kind Kind, id SubscriptionID) bool
}

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Hub is a lightweight in-process pub/sub event bus. Handlers for one kind run
// synchronously on the dispatching goroutine in registration order.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Kind][]subscription
	nextID SubscriptionID
}

var (
	_ Dispatcher = (*Hub)(nil)
	_ Subscriber = (*Hub)(nil)
)

// NewHub constructs a new empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[Kind][]subscription),
	}
}

// Subscribe registers a handler for the given kind.
func (h *Hub) Subscribe(kind Kind, handler Handler) (SubscriptionID, error) {
	if !kind.Valid() {
		return 0, ErrUnknownKind
	}
	if handler == nil {
		return 0, errors.New("events: nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs[kind] = append(h.subs[kind], subscription{id: id, handler: handler})
	return id, nil
}

// Unsubscribe removes a registration. It reports whether anything was removed.
func (h *Hub) Unsubscribe(kind Kind, id SubscriptionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	listeners := h.subs[kind]
	for i, sub := range listeners {
		if sub.id != id {
			continue
		}
		rest := make([]subscription, 0, len(listeners)-1)
		rest = append(rest, listeners[:i]...)
		rest = append(rest, listeners[i+1:]...)
		if len(rest) == 0 {
			delete(h.subs, kind)
		} else {
			h.subs[kind] = rest
		}
		return true
	}
	return false
}

// Dispatch delivers payload to every subscriber of kind and reports whether
// at least one listener was registered.
func (h *Hub) Dispatch(ctx context.Context, kind Kind, payload any) bool {
	handlers := h.snapshotHandlers(kind)
	if len(handlers) == 0 {
		return false
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	for _, handler := range handlers {
		handler(ctx, event)
	}
	return true
}

// Listeners returns the number of handlers registered for kind.
func (h *Hub) Listeners(kind Kind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[kind])
}

// snapshot so handlers may (un)subscribe while being invoked
func (h *Hub) snapshotHandlers(kind Kind) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	listeners := h.subs[kind]
	if len(listeners) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(listeners))
	for _, sub := range listeners {
		out = append(out, sub.handler)
	}
	return out
}
