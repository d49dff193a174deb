package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/constants"
	mw "surveydesk-go/internal/middleware"
	"surveydesk-go/internal/upstream/strategy"
)

// Server emulates the dashboard backend: the visitor handshake, sign-in, and
// policy-guarded API operations.
type Server struct {
	cfg       *config.Config
	key       []byte
	jwtSecret []byte
	pwHash    []byte
	table     *strategy.Table
	engine    *gin.Engine

	mu       sync.Mutex
	sessions map[string]struct{}
	visitors map[string]struct{}
	members  map[string]Member
	profile  map[string]any

	sessionIDCalls atomic.Int64
	exchangeCalls  atomic.Int64
}

// Stats counts handshake traffic.
type Stats struct {
	SessionIDCalls int64 `json:"session_id_calls"`
	ExchangeCalls  int64 `json:"exchange_calls"`
	Visitors       int   `json:"visitors"`
}

// New builds the engine. The demo password is hashed once at startup.
func New(cfg *config.Config) (*Server, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DevServer.DemoPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	s := &Server{
		cfg:       cfg,
		key:       []byte(cfg.Session.BootstrapKey),
		jwtSecret: []byte(cfg.DevServer.JWTSecret),
		pwHash:    hash,
		table:     strategy.NewTable(nil),
		sessions:  make(map[string]struct{}),
		visitors:  make(map[string]struct{}),
		members:   make(map[string]Member),
		profile:   map[string]any{"email": cfg.DevServer.DemoEmail, "name": "Demo User"},
	}
	s.engine = s.buildEngine()
	return s, nil
}

func (s *Server) buildEngine() *gin.Engine {
	if !s.cfg.Security.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	_ = engine.SetTrustedProxies([]string{})
	engine.Use(mw.RequestID(), mw.Tracing(), mw.Recovery(), mw.Metrics(), mw.RequestLogger())
	engine.Use(mw.RateLimiterByCredential(s.cfg.DevServer.RateLimitRPS, s.cfg.DevServer.RateLimitBurst))

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	engine.GET("/debug/stats", func(c *gin.Context) { c.JSON(http.StatusOK, s.Stats()) })
	engine.GET("/metrics", mw.MetricsHandler())

	sessionPath := s.cfg.API.SessionPath
	if sessionPath == "" {
		sessionPath = constants.DefaultSessionPath
	}
	loginPath := s.cfg.API.LoginPath
	if loginPath == "" {
		loginPath = constants.DefaultLoginPath
	}
	engine.GET(sessionPath, s.handleSession)
	engine.POST(loginPath, s.handleLogin)
	engine.Any("/api/:op", s.guard, s.handleOp)
	return engine
}

// Handler exposes the engine for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Stats returns handshake counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	visitors := len(s.visitors)
	s.mu.Unlock()
	return Stats{
		SessionIDCalls: s.sessionIDCalls.Load(),
		ExchangeCalls:  s.exchangeCalls.Load(),
		Visitors:       visitors,
	}
}

// Run serves on cfg.DevServer.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.DevServer.Addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("dev server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
