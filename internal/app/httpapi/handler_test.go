package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	app "github.com/moodtrail/tracker/internal/app"
	"github.com/moodtrail/tracker/internal/app/domain/audit"
	"github.com/moodtrail/tracker/internal/app/domain/dashboard"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/storage/memory"
	"github.com/moodtrail/tracker/internal/httputil"
	"github.com/moodtrail/tracker/internal/middleware"
	"github.com/moodtrail/tracker/pkg/logger"
)

const adminEmail = "admin@example.com"

func newTestHandler(t *testing.T, opts Options) *Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{
		JWTSecret:  "test-secret",
		BcryptCost: 4,
		Admins:     map[string]struct{}{adminEmail: {}},
	}, logger.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDiscard()
	}
	if opts.LoginBurst == 0 {
		opts.LoginBurst = 100
		opts.LoginRate = 100
	}
	return NewHandler(application, opts)
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// signup registers and logs in, returning the user id and token.
func signup(t *testing.T, h http.Handler, name, email string) (string, string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "email": email, "password": "secret1",
	}, "")
	expectStatus(t, rec, http.StatusCreated)

	rec = do(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": "secret1",
	}, "")
	expectStatus(t, rec, http.StatusOK)
	resp := decode[loginResponse](t, rec)
	if resp.Token == "" || resp.User.Email != email {
		t.Fatalf("unexpected login response %+v", resp)
	}
	return resp.User.ID, resp.Token
}

func TestAuthFlow(t *testing.T) {
	h := newTestHandler(t, Options{})

	rec := do(t, h, http.MethodPost, "/api/users", map[string]string{
		"name": "Dana", "email": "Dana@Example.com ", "password": "secret1",
	}, "")
	expectStatus(t, rec, http.StatusCreated)
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password hash leaked: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Dana", "email": "dana@example.com", "password": "secret1",
	}, "")
	expectStatus(t, rec, http.StatusConflict)

	rec = do(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "dana@example.com", "password": "wrong",
	}, "")
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decode[httputil.ErrorBody](t, rec); body.Error != "Invalid email or password" {
		t.Fatalf("unexpected error %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "dana@example.com", "password": "secret1",
	}, "")
	expectStatus(t, rec, http.StatusOK)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.DefaultCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" || cookie.Path != "/" || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("auth cookie not set: %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	h.ServeHTTP(me, req)
	expectStatus(t, me, http.StatusOK)

	rec = do(t, h, http.MethodGet, "/api/auth/me", nil, "")
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decode[httputil.ErrorBody](t, rec); body.Error != "Access token required" {
		t.Fatalf("unexpected error %+v", body)
	}

	rec = do(t, h, http.MethodGet, "/api/auth/me", nil, "not-a-jwt")
	expectStatus(t, rec, http.StatusForbidden)

	rec = do(t, h, http.MethodPost, "/api/auth/logout", nil, cookie.Value)
	expectStatus(t, rec, http.StatusOK)
	rec = do(t, h, http.MethodGet, "/api/auth/me", nil, cookie.Value)
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decode[httputil.ErrorBody](t, rec); body.Error != "Session expired" {
		t.Fatalf("unexpected error %+v", body)
	}
}

func TestJournalOwnership(t *testing.T) {
	h := newTestHandler(t, Options{})
	_, alice := signup(t, h, "Alice", "alice@example.com")
	_, bob := signup(t, h, "Bob", "bob@example.com")
	_, admin := signup(t, h, "Admin", adminEmail)

	rec := do(t, h, http.MethodPost, "/api/journal", `{"content":"Long run","mood":" Happy ","tags":"run, outdoors,","energyLevel":"8","extra":true}`, alice)
	expectStatus(t, rec, http.StatusCreated)
	entry := decode[journal.Entry](t, rec)
	if entry.Mood != "happy" || entry.EnergyLevel != 8 || len(entry.Tags) != 2 {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec = do(t, h, http.MethodPost, "/api/journal", map[string]string{"content": "no mood"}, alice)
	expectStatus(t, rec, http.StatusBadRequest)

	expectStatus(t, do(t, h, http.MethodGet, "/api/journal/"+entry.ID, nil, bob), http.StatusForbidden)
	expectStatus(t, do(t, h, http.MethodGet, "/api/journal/"+entry.ID, nil, admin), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodGet, "/api/journal/missing", nil, alice), http.StatusNotFound)

	rec = do(t, h, http.MethodPut, "/api/journal/"+entry.ID, map[string]any{"energyLevel": 3}, alice)
	expectStatus(t, rec, http.StatusOK)
	if updated := decode[journal.Entry](t, rec); updated.EnergyLevel != 3 || updated.Content != "Long run" {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = do(t, h, http.MethodGet, "/api/journal?q=OUTDOORS", nil, alice)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]journal.Entry](t, rec); len(list) != 1 {
		t.Fatalf("expected search hit, got %d", len(list))
	}
	rec = do(t, h, http.MethodGet, "/api/journal", nil, bob)
	if list := decode[[]journal.Entry](t, rec); len(list) != 0 {
		t.Fatalf("bob sees %d entries", len(list))
	}
	expectStatus(t, do(t, h, http.MethodGet, "/api/journal?userId="+entry.UserID, nil, bob), http.StatusForbidden)
	expectStatus(t, do(t, h, http.MethodGet, "/api/journal?limit=-1", nil, bob), http.StatusBadRequest)

	expectStatus(t, do(t, h, http.MethodDelete, "/api/journal/"+entry.ID, nil, bob), http.StatusForbidden)
	rec = do(t, h, http.MethodDelete, "/api/journal/"+entry.ID, nil, alice)
	expectStatus(t, rec, http.StatusOK)
	if body := decode[map[string]string](t, rec); body["message"] != "Journal entry deleted successfully" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRemindersSummariesAndDashboard(t *testing.T) {
	h := newTestHandler(t, Options{})
	userID, token := signup(t, h, "Casey", "casey@example.com")

	rec := do(t, h, http.MethodPost, "/api/reminders", map[string]any{
		"reminderType": "hydrate", "via": "push", "sentAt": "2026-03-01T09:00:00Z", "bogus": 1,
	}, token)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = do(t, h, http.MethodPost, "/api/reminders", map[string]any{
		"reminderType": "hydrate", "via": "push", "sentAt": "2026-03-01T09:00:00Z",
	}, token)
	expectStatus(t, rec, http.StatusCreated)
	rem := decode[map[string]any](t, rec)
	remID := rem["id"].(string)

	rec = do(t, h, http.MethodPatch, "/api/reminders/"+remID, map[string]any{"isActive": false}, token)
	expectStatus(t, rec, http.StatusOK)
	rec = do(t, h, http.MethodGet, "/api/reminders?active=true", nil, token)
	if list := decode[[]map[string]any](t, rec); len(list) != 0 {
		t.Fatalf("expected no active reminders, got %d", len(list))
	}
	expectStatus(t, do(t, h, http.MethodPut, "/api/reminders/"+remID, map[string]any{}, token), http.StatusMethodNotAllowed)

	expectStatus(t, do(t, h, http.MethodPost, "/api/journal", map[string]any{"content": "ok", "mood": "calm"}, token), http.StatusCreated)

	rec = do(t, h, http.MethodPost, "/api/summaries/generate", nil, token)
	expectStatus(t, rec, http.StatusCreated)
	first := decode[map[string]any](t, rec)
	rec = do(t, h, http.MethodPost, "/api/summaries/generate", nil, token)
	expectStatus(t, rec, http.StatusOK)
	if again := decode[map[string]any](t, rec); again["id"] != first["id"] {
		t.Fatalf("generate should reuse the week's summary")
	}
	expectStatus(t, do(t, h, http.MethodPost, "/api/summaries/generate", map[string]string{"weekStart": "yesterday"}, token), http.StatusBadRequest)

	rec = do(t, h, http.MethodGet, "/api/dashboard", nil, token)
	expectStatus(t, rec, http.StatusOK)
	d := decode[dashboard.Dashboard](t, rec)
	if d.TotalStats.JournalEntries != 1 || d.TotalStats.Reminders != 1 || d.TotalStats.Summaries != 1 {
		t.Fatalf("unexpected totals %+v", d.TotalStats)
	}
	if len(d.DailyActivity) != 7 {
		t.Fatalf("expected 7 days of activity, got %d", len(d.DailyActivity))
	}

	_, other := signup(t, h, "Other", "other@example.com")
	expectStatus(t, do(t, h, http.MethodGet, "/api/dashboard/"+userID, nil, other), http.StatusForbidden)
	expectStatus(t, do(t, h, http.MethodDelete, "/api/summaries/"+first["id"].(string), nil, other), http.StatusForbidden)
	expectStatus(t, do(t, h, http.MethodDelete, "/api/summaries/"+first["id"].(string), nil, token), http.StatusOK)
}

func TestExportAndData(t *testing.T) {
	h := newTestHandler(t, Options{})
	_, token := signup(t, h, "Eli", "eli@example.com")
	expectStatus(t, do(t, h, http.MethodPost, "/api/journal", map[string]any{"content": "a,b", "mood": "tired", "tags": []string{"x", "y"}}, token), http.StatusCreated)

	rec := do(t, h, http.MethodGet, "/api/export?format=csv", nil, token)
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=\"journal-") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,createdAt,title,mood,energyLevel,tags,content") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}
	expectStatus(t, do(t, h, http.MethodGet, "/api/export?format=xml", nil, token), http.StatusBadRequest)

	rec = do(t, h, http.MethodGet, "/api/exports", nil, token)
	if logs := decode[[]map[string]any](t, rec); len(logs) != 1 || logs[0]["format"] != "csv" {
		t.Fatalf("unexpected export logs %v", logs)
	}

	expectStatus(t, do(t, h, http.MethodPost, "/api/data", map[string]string{"value": "v"}, token), http.StatusBadRequest)
	expectStatus(t, do(t, h, http.MethodPost, "/api/data", map[string]string{"name": "k", "value": "v"}, token), http.StatusCreated)
	rec = do(t, h, http.MethodGet, "/api/data", nil, token)
	if list := decode[[]map[string]any](t, rec); len(list) != 1 {
		t.Fatalf("expected one record, got %d", len(list))
	}
}

func TestAdminRoutesAndAudit(t *testing.T) {
	dir := t.TempDir()
	fileSink, err := NewFileAuditSink(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	defer fileSink.Close()
	store := memory.New()

	h := newTestHandler(t, Options{AuditSize: 3, AuditSinks: []AuditSink{fileSink, NewStoreAuditSink(store)}})
	_, user := signup(t, h, "User", "user@example.com")
	_, admin := signup(t, h, "Admin", adminEmail)

	expectStatus(t, do(t, h, http.MethodGet, "/api/users", nil, user), http.StatusForbidden)
	expectStatus(t, do(t, h, http.MethodGet, "/api/admin/audit", nil, user), http.StatusForbidden)

	rec := do(t, h, http.MethodGet, "/api/users", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]map[string]any](t, rec); len(list) != 2 {
		t.Fatalf("expected 2 users, got %d", len(list))
	}

	rec = do(t, h, http.MethodGet, "/api/admin/audit", nil, admin)
	expectStatus(t, rec, http.StatusOK)
	entries := decode[[]audit.Entry](t, rec)
	if len(entries) != 3 {
		t.Fatalf("audit window should hold 3 entries, got %d", len(entries))
	}
	if last := entries[2]; last.Path != "/api/users" || last.Status != http.StatusOK || last.Role != "admin" {
		t.Fatalf("unexpected last entry %+v", last)
	}

	stored, err := store.ListAudit(context.Background(), 0)
	if err != nil || len(stored) != 4 {
		t.Fatalf("store sink got %d entries, %v", len(stored), err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	if lines := strings.Count(string(raw), "\n"); lines != 4 {
		t.Fatalf("expected 4 audit lines, got %d", lines)
	}
}

func TestLoginRateLimit(t *testing.T) {
	h := newTestHandler(t, Options{LoginRate: 0.001, LoginBurst: 2})
	body := map[string]string{"email": "nobody@example.com", "password": "x"}
	expectStatus(t, do(t, h, http.MethodPost, "/api/auth/login", body, ""), http.StatusUnauthorized)
	expectStatus(t, do(t, h, http.MethodPost, "/api/auth/login", body, ""), http.StatusUnauthorized)
	rec := do(t, h, http.MethodPost, "/api/auth/login", body, "")
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestLoginRateLimitIgnoresForwardedFor(t *testing.T) {
	login := func(h http.Handler, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"nobody@example.com","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	h := newTestHandler(t, Options{LoginRate: 0.001, LoginBurst: 2})
	limited := 0
	for i := 0; i < 10; i++ {
		if login(h, fmt.Sprintf("198.51.100.%d", i+1)) == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 8 {
		t.Fatalf("expected 8 of 10 rotated attempts limited, got %d", limited)
	}

	trusted := newTestHandler(t, Options{LoginRate: 0.001, LoginBurst: 2, TrustProxyHeaders: true})
	for i := 0; i < 3; i++ {
		if code := login(trusted, fmt.Sprintf("203.0.113.%d", i+1)); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d behind trusted proxy: got %d", i, code)
		}
	}
}

func TestReminderStream(t *testing.T) {
	h := newTestHandler(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})
	userID, token := signup(t, h, "Alice", "alice@example.com")
	expectStatus(t, do(t, h, http.MethodGet, "/api/ws", nil, ""), http.StatusUnauthorized)

	srv := httptest.NewServer(h)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{
		"Authorization": {"Bearer " + token},
		"Origin":        {"http://evil.example"},
	})
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin upgraded: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{
		"Authorization": {"Bearer " + token},
		"Origin":        {"http://localhost:3000"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.app.Hub.Connections(userID) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("stream not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := do(t, h, http.MethodPost, "/api/reminders", map[string]any{
		"title": "Stretch", "reminderType": "health", "via": "in_app",
		"sentAt": time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
	}, token)
	expectStatus(t, rec, http.StatusCreated)

	if n, err := h.app.Dispatcher.Dispatch(context.Background()); err != nil || n != 1 {
		t.Fatalf("dispatch = %d, %v", n, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["title"] != "Stretch" || msg["userId"] != userID {
		t.Fatalf("unexpected message %v", msg)
	}
	_ = h.app.Hub.Stop(context.Background())
}

func TestHealthAndRouting(t *testing.T) {
	h := newTestHandler(t, Options{AllowedOrigins: []string{"http://localhost:3000"}, Version: "1.2.3"})

	rec := do(t, h, http.MethodGet, "/healthz", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if resp := decode[healthResponse](t, rec); resp.Status != "ok" || resp.Version != "1.2.3" {
		t.Fatalf("unexpected health %+v", resp)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}

	expectStatus(t, do(t, h, http.MethodGet, "/metrics", nil, ""), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodGet, "/nope", nil, ""), http.StatusNotFound)

	req := httptest.NewRequest(http.MethodOptions, "/api/journal", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	expectStatus(t, pre, http.StatusNoContent)
	if pre.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials not allowed on preflight")
	}
}
