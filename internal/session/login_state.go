package session

import (
	"context"
	"sync"

	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/events"
)

// LoginState follows the user credential through hub events, so readers
// never poll storage.
type LoginState struct {
	hub events.Subscriber
	sub events.SubscriptionID

	mu        sync.RWMutex
	loggedIn  bool
	changes   uint64
	listeners []func(bool)
}

// NewLoginState subscribes to user credential changes, then seeds the state
// from store. A change delivered while seeding wins over the seed.
func NewLoginState(ctx context.Context, store CredentialStore, hub events.Subscriber) (*LoginState, error) {
	ls := &LoginState{hub: hub}
	id, err := hub.Subscribe(events.UserCredentialChanged, ls.handle)
	if err != nil {
		return nil, err
	}
	ls.sub = id

	ls.mu.RLock()
	seen := ls.changes
	ls.mu.RUnlock()

	_, present := store.Get(ctx, credential.SlotUser)

	ls.mu.Lock()
	if ls.changes == seen {
		ls.loggedIn = present
	}
	ls.mu.Unlock()
	return ls, nil
}

// LoggedIn reports whether a user credential is present.
func (l *LoginState) LoggedIn() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loggedIn
}

// OnChange registers fn to run when the login state flips.
func (l *LoginState) OnChange(fn func(loggedIn bool)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Close unsubscribes from the hub.
func (l *LoginState) Close() {
	l.hub.Unsubscribe(events.UserCredentialChanged, l.sub)
}

func (l *LoginState) handle(_ context.Context, ev events.Event) {
	change, ok := ev.Payload.(credential.Change)
	if !ok {
		return
	}
	l.mu.Lock()
	l.changes++
	if l.loggedIn == change.Present {
		l.mu.Unlock()
		return
	}
	l.loggedIn = change.Present
	listeners := append([]func(bool){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(change.Present)
	}
}
