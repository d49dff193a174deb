package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/monitoring"
	"surveydesk-go/internal/upstream"
)

// Status is the outcome of one Ensure call.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports how Ensure ended. Reason is set for skipped and failed.
type Result struct {
	Status Status
	Reason string
}

var (
	ErrMalformedSessionID = errors.New("session: malformed session identifier")
	ErrMalformedToken     = errors.New("session: malformed visitor token")
)

// Fetcher performs unauthenticated GETs against the API.
type Fetcher interface {
	Raw(ctx context.Context, endpoint string, query map[string]string) (*upstream.Result, error)
}

// CredentialStore is the part of credential.Store the bootstrapper uses.
type CredentialStore interface {
	Get(ctx context.Context, slot credential.Slot) (string, bool)
	Set(ctx context.Context, slot credential.Slot, value string) error
}

const flightKey = "visitor"

// Bootstrapper obtains a visitor credential through the two-step handshake.
// Concurrent callers share a single in-flight handshake.
type Bootstrapper struct {
	fetcher Fetcher
	store   CredentialStore
	key     []byte
	path    string
	timeout time.Duration

	group      singleflight.Group
	handshakes atomic.Int64
}

func NewBootstrapper(cfg *config.Config, fetcher Fetcher, store CredentialStore) *Bootstrapper {
	path := cfg.API.SessionPath
	if path == "" {
		path = constants.DefaultSessionPath
	}
	return &Bootstrapper{
		fetcher: fetcher,
		store:   store,
		key:     []byte(cfg.Session.BootstrapKey),
		path:    path,
		timeout: cfg.HandshakeTimeout(),
	}
}

// Handshakes returns how many handshakes were started.
func (b *Bootstrapper) Handshakes() int64 { return b.handshakes.Load() }

// Ensure makes sure a visitor credential exists. It never panics or returns
// an error; failures are reported in the Result. ctx only bounds how long
// this caller waits: the shared handshake runs on its own deadline.
func (b *Bootstrapper) Ensure(ctx context.Context) Result {
	if _, ok := b.store.Get(ctx, credential.SlotVisitor); ok {
		return Result{Status: StatusSkipped, Reason: "visitor credential present"}
	}

	ch := b.group.DoChan(flightKey, func() (any, error) {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()
		return b.run(hctx)
	})

	select {
	case <-ctx.Done():
		return Result{Status: StatusFailed, Reason: "stopped waiting: " + ctx.Err().Error()}
	case r := <-ch:
		if r.Err != nil {
			return Result{Status: StatusFailed, Reason: r.Err.Error()}
		}
		return r.Val.(Result)
	}
}

// EnsureVisitorSession runs Ensure and logs the outcome.
func (b *Bootstrapper) EnsureVisitorSession(ctx context.Context) {
	r := b.Ensure(ctx)
	entry := log.WithField("status", r.Status)
	switch r.Status {
	case StatusFailed:
		entry.WithField("reason", r.Reason).Warn("visitor session bootstrap failed; continuing without visitor session")
	case StatusSkipped:
		entry.Debug("visitor session already present")
	default:
		entry.Info("visitor session established")
	}
}

func (b *Bootstrapper) run(ctx context.Context) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("session: handshake panic: %v", p)
		}
		label := string(StatusOK)
		if err != nil {
			label = string(StatusFailed)
		} else if res.Status == StatusSkipped {
			label = string(StatusSkipped)
		}
		monitoring.BootstrapAttemptsTotal.WithLabelValues(label).Inc()
	}()

	// a handshake that finished just before this flight started
	if _, ok := b.store.Get(ctx, credential.SlotVisitor); ok {
		return Result{Status: StatusSkipped, Reason: "visitor credential present"}, nil
	}

	b.handshakes.Add(1)
	token, err := b.handshake(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := b.store.Set(ctx, credential.SlotVisitor, token); err != nil {
		return Result{}, fmt.Errorf("session: store visitor token: %w", err)
	}
	return Result{Status: StatusOK}, nil
}

// handshake: GET the session id, then GET again with the encrypted id as
// "secret" to receive the visitor token.
func (b *Bootstrapper) handshake(ctx context.Context) (string, error) {
	res, err := b.fetcher.Raw(ctx, b.path, nil)
	if err != nil {
		return "", fmt.Errorf("session: fetch session id: %w", err)
	}
	if res.Kind != upstream.BodyText {
		return "", fmt.Errorf("%w: %s body", ErrMalformedSessionID, res.Kind)
	}
	id := normalizePlain(res.Text())
	if id == "" || strings.ContainsAny(id, " \t\r\n") {
		return "", ErrMalformedSessionID
	}

	secret, err := EncryptSecret(id, b.key)
	if err != nil {
		return "", fmt.Errorf("session: encrypt session id: %w", err)
	}

	res, err = b.fetcher.Raw(ctx, b.path, map[string]string{"secret": secret})
	if err != nil {
		return "", fmt.Errorf("session: exchange secret: %w", err)
	}
	token := normalizePlain(res.Text())
	if !IsCanonicalUUID(token) {
		return "", fmt.Errorf("%w: %q", ErrMalformedToken, truncate(token, 40))
	}
	return token, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
