// Package runtime assembles the tracker process from configuration: storage,
// cache, services, background jobs and the HTTP server.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	app "github.com/moodtrail/tracker/internal/app"
	"github.com/moodtrail/tracker/internal/app/cache"
	"github.com/moodtrail/tracker/internal/app/httpapi"
	"github.com/moodtrail/tracker/internal/app/services/reminders"
	"github.com/moodtrail/tracker/internal/app/storage/postgres"
	"github.com/moodtrail/tracker/internal/config"
	"github.com/moodtrail/tracker/internal/middleware"
	"github.com/moodtrail/tracker/internal/platform/database"
	"github.com/moodtrail/tracker/internal/platform/migrations"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Version is reported by /healthz. Overridden at build time with -ldflags.
var Version = "dev"

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	app     *app.Application
	handler *httpapi.Handler
	server  *http.Server
	db      *sql.DB
	closers []io.Closer

	mu       sync.Mutex
	listener net.Listener
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LoggingConfig) *logger.Logger {
	return logger.New(logger.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		FilePrefix: cfg.FilePrefix,
	})
}

// NewApplication constructs the application described by cfg. On error every
// resource opened so far is released.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Application, err error) {
	if log == nil {
		log = NewLogger(cfg.Logging)
	}
	a := &Application{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	stores, err := a.buildStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	dashboardCache, err := a.buildCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("configure cache: %w", err)
	}

	notifier, err := a.buildNotifier()
	if err != nil {
		return nil, fmt.Errorf("configure notifier: %w", err)
	}

	a.app, err = app.New(stores, app.Options{
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
		Admins:       cfg.Auth.Admins(),
		BcryptCost:   cfg.Auth.BcryptCost,
		Cache:        dashboardCache,
		DashboardTTL: cfg.Cache.DashboardTTL,
		Notifier:     notifier,
		Schedules: app.Schedules{
			Enabled:  cfg.Scheduler.Enabled,
			Reminder: cfg.Scheduler.ReminderSpec,
			Summary:  cfg.Scheduler.SummarySpec,
			Session:  cfg.Scheduler.SessionSpec,
		},
	}, log.Named("app"))
	if err != nil {
		return nil, err
	}

	sinks, err := a.auditSinks(stores)
	if err != nil {
		return nil, fmt.Errorf("configure audit log: %w", err)
	}

	opts := httpapi.Options{
		Cookie: middleware.CookieConfig{
			Name:     cfg.Auth.CookieName,
			Secure:   cfg.Auth.CookieSecure,
			HTTPOnly: cfg.Auth.CookieHTTPOnly,
		},
		AllowedOrigins:    cfg.Server.AllowedOrigins(),
		LoginRate:         cfg.Auth.LoginRateLimit,
		LoginBurst:        cfg.Auth.LoginBurst,
		AuditSize:         cfg.Server.AuditLogSize,
		AuditSinks:        sinks,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Version:           Version,
		Logger:            log.Named("http"),
	}
	if a.db != nil {
		opts.DB = a.db
	}
	a.handler = httpapi.NewHandler(a.app, opts)
	if err := a.app.Attach(a.handler); err != nil {
		return nil, err
	}

	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return a, nil
}

func (a *Application) buildStores(ctx context.Context) (app.Stores, error) {
	if a.cfg.Database.Driver == "memory" {
		a.log.Warn("using in-memory storage; data is lost on restart")
		return app.Stores{}, nil
	}

	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return app.Stores{}, err
	}
	a.db = db
	if a.cfg.Database.AutoMigrate {
		if err := migrations.Apply(ctx, db); err != nil {
			return app.Stores{}, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := postgres.New(db)
	return app.Stores{
		Users:     store,
		Sessions:  store,
		Journal:   store,
		Reminders: store,
		Summaries: store,
		Exports:   store,
		Records:   store,
		Audit:     store,
	}, nil
}

func (a *Application) buildCache(ctx context.Context) (cache.Cache, error) {
	c := a.cfg.Cache
	if c.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	r, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   "tracker:",
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, r)
	a.log.WithField("addr", c.RedisAddr).Info("dashboard cache backed by redis")
	return r, nil
}

func (a *Application) buildNotifier() (reminders.Notifier, error) {
	n := a.cfg.Notify
	if n.WebhookURL == "" {
		return nil, nil
	}
	webhook, err := reminders.NewWebhookNotifier(&http.Client{Timeout: n.Timeout}, n.WebhookURL, n.WebhookKey, a.log.Named("notifier"))
	if err != nil {
		return nil, err
	}
	return webhook, nil
}

func (a *Application) auditSinks(stores app.Stores) ([]httpapi.AuditSink, error) {
	var sinks []httpapi.AuditSink
	if path := a.cfg.Server.AuditLogPath; path != "" {
		file, err := httpapi.NewFileAuditSink(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, file)
		sinks = append(sinks, file)
	}
	if a.db != nil {
		sinks = append(sinks, httpapi.NewStoreAuditSink(stores.Audit))
	}
	return sinks, nil
}

// Handler exposes the HTTP API, mostly for tests.
func (a *Application) Handler() http.Handler { return a.handler }

// Core returns the wired services.
func (a *Application) Core() *app.Application { return a.app }

// Addr returns the bound listen address once Run has started listening.
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run starts the background services and the HTTP server and blocks until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	if err := a.app.Start(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", ln.Addr().String()).WithField("services", a.app.Services()).Info("HTTP server listening")
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server and background services and
// releases storage connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("services: %w", err))
	}
	a.release()
	return errors.Join(errs...)
}

func (a *Application) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("error closing resource")
		}
	}
	a.closers = nil
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
}
