package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                        "/",
		"/":                       "/",
		"/healthz":                "/healthz",
		"/api/journal":            "/api/journal",
		"/api/journal/42":         "/api/journal/:id",
		"/api/journal/42/":        "/api/journal/:id",
		"/api/auth/login":         "/api/auth/login",
		"/api/summaries/generate": "/api/summaries/generate",
		"/api/summaries/abc-123":  "/api/summaries/:id",
		"/api/dashboard/u1":       "/api/dashboard/:id",
		"/api/admin/audit":        "/api/admin/audit",
		"/assets/app.js":          "/assets",
	}
	for in, want := range cases {
		if got := canonicalPath(in); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordLogin(true)
	RecordJournalWrite("create")
	RecordReminderDelivery(false)
	RecordSummaryGenerated()
	RecordExport("csv")
	RecordJobRun("reminder-dispatcher", 0, true)

	instrumented := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	instrumented.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/journal", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`tracker_http_requests_total{method="POST",path="/api/journal",status="201"}`,
		`tracker_auth_logins_total{success="true"}`,
		`tracker_exports_total{format="csv"}`,
		`tracker_summaries_generated_total`,
		`tracker_scheduler_job_run_duration_seconds_count{job="reminder-dispatcher",success="true"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
