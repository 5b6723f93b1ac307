// Package httpapi exposes the tracker's services as a JSON REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"

	app "github.com/moodtrail/tracker/internal/app"
	"github.com/moodtrail/tracker/internal/app/auth"
	"github.com/moodtrail/tracker/internal/app/metrics"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/internal/httputil"
	"github.com/moodtrail/tracker/internal/middleware"
	"github.com/moodtrail/tracker/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Pinger reports database reachability for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	Cookie         middleware.CookieConfig
	AllowedOrigins []string
	// LoginRate and LoginBurst throttle register and login per client.
	LoginRate  float64
	LoginBurst int
	AuditSize  int
	AuditSinks []AuditSink
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
	DB                Pinger
	Version           string
	Logger            *logger.Logger
}

// Handler serves the API and owns the background upkeep of its middleware.
type Handler struct {
	app     *app.Application
	opts    Options
	log     *logger.Logger
	limiter *middleware.RateLimiter
	audit   *auditLog
	root    http.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewHandler returns the tracker API.
func NewHandler(application *app.Application, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("http")
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = 1
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	h := &Handler{
		app:     application,
		opts:    opts,
		log:     log,
		limiter: middleware.NewRateLimiter(opts.LoginRate, opts.LoginBurst, log.Named("ratelimit")),
		audit:   newAuditLog(opts.AuditSize, log.Named("audit"), opts.AuditSinks...),
	}

	cors := middleware.NewCORSMiddleware(opts.AllowedOrigins)
	application.Hub.CheckOrigin(cors.AllowsOrigin)

	var root http.Handler = h.routes()
	root = cors.Handler(root)
	root = metrics.InstrumentHandler(root)
	root = chimw.Recoverer(root)
	root = middleware.Logging(log)(root)
	if opts.TrustProxyHeaders {
		root = chimw.RealIP(root)
	}
	root = chimw.RequestID(root)
	h.root = root
	return h
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, apperrors.NotFound("Not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, apperrors.MethodNotAllowed())
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	limited := func(fn http.HandlerFunc) http.Handler { return h.limiter.Handler(fn) }
	r.Handle("/api/auth/register", limited(h.register)).Methods(http.MethodPost)
	r.Handle("/api/auth/login", limited(h.login)).Methods(http.MethodPost)
	r.Handle("/api/users", limited(h.register)).Methods(http.MethodPost)

	authn := middleware.NewAuthMiddleware(h.app.Auth, h.opts.Cookie, h.log.Named("auth"), nil)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authn.Handler, h.audit.middleware)

	api.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)

	api.Handle("/users", middleware.RequireAdmin(http.HandlerFunc(h.listUsers))).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.updateUser).Methods(http.MethodPut)
	api.HandleFunc("/users/{id}", h.deleteUser).Methods(http.MethodDelete)

	api.HandleFunc("/journal", h.listEntries).Methods(http.MethodGet)
	api.HandleFunc("/journal", h.createEntry).Methods(http.MethodPost)
	api.HandleFunc("/journal/{id}", h.getEntry).Methods(http.MethodGet)
	api.HandleFunc("/journal/{id}", h.updateEntry).Methods(http.MethodPut)
	api.HandleFunc("/journal/{id}", h.deleteEntry).Methods(http.MethodDelete)

	api.HandleFunc("/reminders", h.listReminders).Methods(http.MethodGet)
	api.HandleFunc("/reminders", h.createReminder).Methods(http.MethodPost)
	api.HandleFunc("/reminders/{id}", h.getReminder).Methods(http.MethodGet)
	api.HandleFunc("/reminders/{id}", h.updateReminder).Methods(http.MethodPatch)
	api.HandleFunc("/reminders/{id}", h.deleteReminder).Methods(http.MethodDelete)
	api.HandleFunc("/ws", h.reminderStream).Methods(http.MethodGet)

	api.HandleFunc("/summaries", h.listSummaries).Methods(http.MethodGet)
	api.HandleFunc("/summaries", h.createSummary).Methods(http.MethodPost)
	api.HandleFunc("/summaries/generate", h.generateSummary).Methods(http.MethodPost)
	api.HandleFunc("/summaries/{id}", h.getSummary).Methods(http.MethodGet)
	api.HandleFunc("/summaries/{id}", h.deleteSummary).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/{userId}", h.dashboard).Methods(http.MethodGet)

	api.HandleFunc("/export", h.export).Methods(http.MethodGet)
	api.HandleFunc("/exports", h.exportLogs).Methods(http.MethodGet)

	api.HandleFunc("/data", h.listRecords).Methods(http.MethodGet)
	api.HandleFunc("/data", h.createRecord).Methods(http.MethodPost)

	api.Handle("/admin/audit", middleware.RequireAdmin(http.HandlerFunc(h.listAudit))).Methods(http.MethodGet)
	return r
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) Name() string { return "http-upkeep" }

// Start begins evicting idle rate limiter buckets.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.limiter.StartCleanup(runCtx, time.Minute)
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	return nil
}

// identity returns the authenticated caller. Routes under /api always have
// one because the auth middleware runs first.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// requireAccess rejects callers that neither own the resource nor are admin.
func requireAccess(r *http.Request, ownerID string) error {
	if !identity(r).CanAccess(ownerID) {
		return apperrors.Forbidden("Access denied")
	}
	return nil
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("Request body is required")
		}
		return apperrors.InvalidInput(fmt.Sprintf("Invalid JSON body: %v", err))
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.InvalidInput("Could not read request body")
	}
	return raw, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.InvalidInput("limit and offset must be non-negative integers")
	}
	return n, nil
}

func message(text string) map[string]string {
	return map[string]string{"message": text}
}
