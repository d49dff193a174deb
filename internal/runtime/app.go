package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"

	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/account"
	"surveydesk-go/internal/config"
	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/events"
	"surveydesk-go/internal/session"
	"surveydesk-go/internal/storage"
	"surveydesk-go/internal/upstream"
	"surveydesk-go/internal/upstream/strategy"
)

// App is one client runtime: a single credential store, cancellation
// registry and bootstrapper shared by everything built on top of it.
type App struct {
	Config       *config.Config
	Hub          *events.Hub
	KV           storage.KV
	Jar          *cookiejar.Jar
	Store        *credential.Store
	Selector     *strategy.Selector
	API          *upstream.Client
	Bootstrapper *session.Bootstrapper
	Login        *session.LoginState
	Account      *account.Service
	Tasks        *Tasks

	closeKV bool
}

// Option customizes NewApp.
type Option func(*appOptions)

type appOptions struct {
	kv        storage.KV
	navigator upstream.Navigator
}

// WithKV uses kv instead of opening cfg.Storage. The caller keeps ownership.
func WithKV(kv storage.KV) Option { return func(o *appOptions) { o.kv = kv } }

// WithNavigator receives the navigation request issued after a 401.
func WithNavigator(n upstream.Navigator) Option {
	return func(o *appOptions) { o.navigator = n }
}

// NewApp assembles the runtime for cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Hub: events.NewHub()}

	a.KV = o.kv
	if a.KV == nil {
		kv, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.KV, a.closeKV = kv, true
	}

	jar, err := credential.NewCookieJar()
	if err != nil {
		a.closeStorage()
		return nil, err
	}
	a.Jar = jar

	var mirror credential.Channel
	if cfg.Cookie.Enabled {
		mirror = credential.NewCookieChannel(jar, cfg.BaseURL(), cfg.CookieTTL())
	}
	a.Store = credential.NewStore(credential.NewDurableChannel(a.KV), mirror, a.Hub)

	// 启动时把持久化的凭证同步到缓存与 cookie 镜像
	for _, slot := range credential.Slots() {
		a.Store.Sync(ctx, slot.Key())
	}

	a.Selector = strategy.NewSelector(nil, a.Store)

	nav := o.navigator
	if nav == nil {
		nav = upstream.NavigatorFunc(func(path string) {
			log.WithField("path", path).Warn("credential rejected by backend; sign in again")
		})
	}
	a.API = upstream.New(cfg, a.Selector, a.Store).WithJar(jar).WithNavigator(nav)
	a.Bootstrapper = session.NewBootstrapper(cfg, a.API, a.Store)

	a.Login, err = session.NewLoginState(ctx, a.Store, a.Hub)
	if err != nil {
		a.closeStorage()
		return nil, err
	}
	a.Account = account.New(cfg, a.API, a.Store, a.Hub)
	a.Tasks = NewTasks(context.WithoutCancel(ctx))

	log.WithFields(log.Fields{
		"backend":   storage.Label(a.KV),
		"base_url":  cfg.BaseURL().String(),
		"cookies":   cfg.Cookie.Enabled,
		"logged_in": a.Login.LoggedIn(),
	}).Debug("runtime assembled")
	return a, nil
}

// StartBackground launches the configured background tasks: the
// cross-process credential watch and the automatic visitor bootstrap.
func (a *App) StartBackground() error {
	var errs []error
	if a.Config.Storage.Watch {
		if err := a.WatchCredentials(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Config.Session.AutoBootstrap {
		err := a.Tasks.Go("visitor-bootstrap", func(ctx context.Context) error {
			a.Bootstrapper.EnsureVisitorSession(ctx)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WatchCredentials follows writes made to the durable store by other
// processes. Backends without change notification return ErrNotSupported.
func (a *App) WatchCredentials() error {
	w, ok := a.KV.(storage.Watcher)
	if !ok {
		return &storage.ErrNotSupported{Operation: "watch on " + storage.Label(a.KV)}
	}
	return a.Tasks.Go("credential-watch", func(ctx context.Context) error {
		return a.Store.Watch(ctx, w)
	})
}

// FollowConfig routes language changes from m through the hub and keeps
// the reloader running until the tasks stop.
func (a *App) FollowConfig(m *config.Manager) error {
	m.SetDispatcher(a.Hub)
	if err := m.Watch(); err != nil {
		return err
	}
	return a.Tasks.Go("config-watch", func(ctx context.Context) error {
		<-ctx.Done()
		m.Close()
		return nil
	})
}

// Close stops background tasks, cancels in-flight requests and releases
// storage.
func (a *App) Close() error {
	a.Tasks.StopAll()
	a.Tasks.Wait()
	a.API.Registry().CancelAll()
	a.Login.Close()
	return a.closeStorage()
}

func (a *App) closeStorage() error {
	if a.closeKV && a.KV != nil {
		return a.KV.Close()
	}
	return nil
}
