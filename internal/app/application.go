// Package app wires the tracker's services together and manages the lifecycle
// of its background jobs.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/moodtrail/tracker/internal/app/auth"
	"github.com/moodtrail/tracker/internal/app/cache"
	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/scheduler"
	"github.com/moodtrail/tracker/internal/app/services/dashboard"
	"github.com/moodtrail/tracker/internal/app/services/exports"
	"github.com/moodtrail/tracker/internal/app/services/journal"
	"github.com/moodtrail/tracker/internal/app/services/records"
	"github.com/moodtrail/tracker/internal/app/services/reminders"
	"github.com/moodtrail/tracker/internal/app/services/summaries"
	"github.com/moodtrail/tracker/internal/app/services/users"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/internal/app/storage/memory"
	"github.com/moodtrail/tracker/internal/app/system"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users     storage.UserStore
	Sessions  storage.SessionStore
	Journal   storage.JournalStore
	Reminders storage.ReminderStore
	Summaries storage.SummaryStore
	Exports   storage.ExportStore
	Records   storage.RecordStore
	Audit     storage.AuditStore
}

// Schedules holds the cron specs of the background jobs. Empty specs fall
// back to the defaults.
type Schedules struct {
	Enabled  bool
	Reminder string
	Summary  string
	Session  string
}

// Options tunes the application. The zero value is usable for tests: an
// ephemeral signing key, in-process cache, log notifier and no jobs.
type Options struct {
	JWTSecret    string
	TokenTTL     time.Duration
	Admins       map[string]struct{}
	BcryptCost   int
	Cache        cache.Cache
	DashboardTTL time.Duration
	// Notifier receives reminders not delivered to an open in-app
	// connection. Defaults to the log notifier.
	Notifier  reminders.Notifier
	Schedules Schedules
}

const (
	defaultTokenTTL     = 7 * 24 * time.Hour
	defaultBcryptCost   = 12
	defaultReminderSpec = "@every 1m"
	defaultSummarySpec  = "0 6 * * 1"
	defaultSessionSpec  = "@hourly"
)

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Stores     Stores
	Auth       *auth.Manager
	Users      *users.Service
	Journal    *journal.Service
	Reminders  *reminders.Service
	Dispatcher *reminders.Dispatcher
	Hub        *reminders.Hub
	Summaries  *summaries.Service
	Dashboard  *dashboard.Service
	Exports    *exports.Service
	Records    *records.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Journal == nil {
		stores.Journal = mem
	}
	if stores.Reminders == nil {
		stores.Reminders = mem
	}
	if stores.Summaries == nil {
		stores.Summaries = mem
	}
	if stores.Exports == nil {
		stores.Exports = mem
	}
	if stores.Records == nil {
		stores.Records = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}

	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = defaultBcryptCost
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}

	authManager, err := auth.NewManager(opts.JWTSecret, opts.TokenTTL, stores.Sessions, opts.Admins, log.Named("auth"))
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	dashboardService := dashboard.New(dashboard.Stores{
		Users:     stores.Users,
		Journal:   stores.Journal,
		Reminders: stores.Reminders,
		Summaries: stores.Summaries,
	}, opts.Cache, opts.DashboardTTL, log.Named("dashboard"))

	userService := users.New(stores.Users, stores.Journal, opts.BcryptCost, log.Named("users"))
	userService.WithRevoker(authManager)
	userService.WithInvalidator(dashboardService)

	journalService := journal.New(stores.Users, stores.Journal, log.Named("journal"))
	journalService.WithInvalidator(dashboardService)

	reminderService := reminders.New(stores.Users, stores.Reminders, log.Named("reminders"))
	reminderService.WithInvalidator(dashboardService)

	hub := reminders.NewHub(log.Named("reminder-hub"))
	fallback := opts.Notifier
	if fallback == nil {
		fallback = reminders.NewLogNotifier(log.Named("reminder-notifier"))
	}
	notifier := reminders.NewChannelNotifier(fallback).Route(reminder.ChannelInApp, hub)
	dispatcher := reminders.NewDispatcher(stores.Reminders, notifier, log.Named("reminder-dispatcher"))
	dispatcher.WithInvalidator(dashboardService)

	summaryService := summaries.New(stores.Users, stores.Summaries, stores.Journal, stores.Reminders, log.Named("summaries"))
	summaryService.WithInvalidator(dashboardService)

	exportService := exports.New(stores.Journal, stores.Exports, log.Named("exports"))
	recordService := records.New(stores.Records, log.Named("records"))

	manager := system.NewManager()
	if err := manager.Register(hub); err != nil {
		return nil, fmt.Errorf("register %s: %w", hub.Name(), err)
	}
	for _, svc := range jobs(opts.Schedules, dispatcher, summaryService, auth.NewJanitor(stores.Sessions, log.Named("session-janitor"))) {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Stores:     stores,
		Auth:       authManager,
		Users:      userService,
		Journal:    journalService,
		Reminders:  reminderService,
		Dispatcher: dispatcher,
		Hub:        hub,
		Summaries:  summaryService,
		Dashboard:  dashboardService,
		Exports:    exportService,
		Records:    recordService,
	}, nil
}

func jobs(s Schedules, dispatcher *reminders.Dispatcher, summaryService *summaries.Service, janitor *auth.Janitor) []system.Service {
	names := []string{"reminder-dispatcher", "weekly-summaries", "session-janitor"}
	if !s.Enabled {
		out := make([]system.Service, 0, len(names))
		for _, name := range names {
			out = append(out, system.NoopService{ServiceName: name})
		}
		return out
	}
	return []system.Service{
		dispatcher.Job(orDefault(s.Reminder, defaultReminderSpec)).WithTimeout(time.Minute),
		summaryService.Job(orDefault(s.Summary, defaultSummarySpec)),
		janitor.Job(orDefault(s.Session, defaultSessionSpec)),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the registered lifecycle services in start order.
func (a *Application) Services() []string {
	return a.manager.Names()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

var _ system.Service = (*scheduler.Job)(nil)
