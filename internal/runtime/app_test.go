package runtime

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/devserver"
	"surveydesk-go/internal/events"
	"surveydesk-go/internal/storage"
	"surveydesk-go/internal/upstream"
)

const visitorUUID = "6f1c7f2e-9a43-4d2b-8f7e-3b2f1c0d9e8a"

func newTestApp(t *testing.T, kv storage.KV, opts ...Option) (*App, *devserver.Server) {
	t.Helper()
	cfg := config.Defaults()
	cfg.DevServer.RateLimitRPS = 0
	cfg.Storage.Watch = false
	cfg.Session.AutoBootstrap = false
	srv, err := devserver.New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	cfg.API.BaseURL = ts.URL

	opts = append(opts, WithKV(kv))
	app, err := NewApp(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, srv
}

func TestNewAppSyncsPersistedCredentials(t *testing.T) {
	kv := storage.NewMemoryBackend()
	require.NoError(t, kv.Set(context.Background(), constants.VisitorTokenKey, visitorUUID))

	app, _ := newTestApp(t, kv)

	token, ok := app.Store.Get(context.Background(), credential.SlotVisitor)
	require.True(t, ok)
	assert.Equal(t, visitorUUID, token)

	mirrored, ok, err := app.Store.Mirror().Load(context.Background(), constants.VisitorTokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, visitorUUID, mirrored)
	assert.False(t, app.Login.LoggedIn())
}

func TestAutoBootstrapTask(t *testing.T) {
	app, srv := newTestApp(t, storage.NewMemoryBackend())
	app.Config.Session.AutoBootstrap = true

	require.NoError(t, app.StartBackground())
	app.Tasks.Wait()

	info, ok := app.Tasks.Info("visitor-bootstrap")
	require.True(t, ok)
	assert.Equal(t, TaskFinished, info.State)

	_, present := app.Store.Get(context.Background(), credential.SlotVisitor)
	assert.True(t, present)
	assert.EqualValues(t, 1, srv.Stats().ExchangeCalls)
}

func TestSignInFlipsLoginStateAndUnauthorizedNavigates(t *testing.T) {
	var navigations atomic.Int32
	app, _ := newTestApp(t, storage.NewMemoryBackend(),
		WithNavigator(upstream.NavigatorFunc(func(string) { navigations.Add(1) })))
	ctx := context.Background()

	var flips []bool
	app.Login.OnChange(func(loggedIn bool) { flips = append(flips, loggedIn) })

	require.NoError(t, app.Account.SignIn(ctx, app.Config.DevServer.DemoEmail, app.Config.DevServer.DemoPassword))
	assert.True(t, app.Login.LoggedIn())

	// a token the backend does not recognize is cleared on 401
	require.NoError(t, app.Store.Set(ctx, credential.SlotUser, "stale-user-token"))
	_, err := app.API.Get(ctx, "/api/GetMembers", upstream.Options{})
	require.Error(t, err)
	assert.False(t, app.Login.LoggedIn())
	assert.EqualValues(t, 1, navigations.Load())
	assert.Equal(t, []bool{true, false}, flips)
}

func TestWatchCredentialsFollowsExternalWrites(t *testing.T) {
	kv := storage.NewMemoryBackend()
	app, _ := newTestApp(t, kv)

	seen := make(chan credential.Change, 4)
	_, err := app.Hub.Subscribe(events.VisitorCredentialChanged, func(_ context.Context, ev events.Event) {
		seen <- ev.Payload.(credential.Change)
	})
	require.NoError(t, err)

	require.NoError(t, app.WatchCredentials())
	require.Eventually(t, func() bool {
		info, ok := app.Tasks.Info("credential-watch")
		return ok && info.State == TaskRunning
	}, time.Second, 10*time.Millisecond)
	// registration happens inside the task goroutine
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, kv.Set(context.Background(), constants.VisitorTokenKey, visitorUUID))
	select {
	case ch := <-seen:
		assert.True(t, ch.Present)
		assert.Equal(t, visitorUUID, ch.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("external write was not observed")
	}
}

func TestWatchCredentialsUnsupportedBackend(t *testing.T) {
	dir := t.TempDir()
	kv, err := storage.NewBoltBackend(filepath.Join(dir, "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	app, _ := newTestApp(t, kv)
	err = app.WatchCredentials()
	var notSupported *storage.ErrNotSupported
	assert.ErrorAs(t, err, &notSupported)
}

func TestFollowConfigDispatchesLanguage(t *testing.T) {
	app, _ := newTestApp(t, storage.NewMemoryBackend())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ui:\n  language: en\n"), 0o600))
	m, err := config.NewManager(path)
	require.NoError(t, err)

	langs := make(chan string, 1)
	_, err = app.Hub.Subscribe(events.LanguageChanged, func(_ context.Context, ev events.Event) {
		langs <- ev.Payload.(string)
	})
	require.NoError(t, err)
	require.NoError(t, app.FollowConfig(m))

	require.NoError(t, os.WriteFile(path, []byte("ui:\n  language: de\n"), 0o600))
	select {
	case lang := <-langs:
		assert.Equal(t, "de", lang)
	case <-time.After(3 * time.Second):
		t.Fatal("language change was not dispatched")
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	app, _ := newTestApp(t, storage.NewMemoryBackend())
	_, cancel := context.WithCancelCause(context.Background())
	app.API.Registry().Register("pending", "", cancel)

	require.NoError(t, app.Close())
	assert.Equal(t, 0, app.API.Registry().Len())
}
