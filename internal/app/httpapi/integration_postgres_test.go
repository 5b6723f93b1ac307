//go:build integration && postgres

package httpapi

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	app "github.com/moodtrail/tracker/internal/app"
	"github.com/moodtrail/tracker/internal/app/storage/postgres"
	"github.com/moodtrail/tracker/internal/config"
	"github.com/moodtrail/tracker/internal/platform/database"
	"github.com/moodtrail/tracker/internal/platform/migrations"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Runs the API against Postgres to check migrations and persistence together.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := postgres.New(db)
	application, err := app.New(app.Stores{
		Users: store, Sessions: store, Journal: store, Reminders: store,
		Summaries: store, Exports: store, Records: store, Audit: store,
	}, app.Options{JWTSecret: "integration-secret", BcryptCost: 4}, logger.NewDiscard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	h := NewHandler(application, Options{
		DB:         db,
		AuditSinks: []AuditSink{NewStoreAuditSink(store)},
		LoginRate:  100,
		LoginBurst: 100,
		Logger:     logger.NewDiscard(),
	})

	email := "pg-" + time.Now().Format("20060102150405.000000000") + "@example.com"
	userID, token := signup(t, h, "Integration", email)
	defer application.Users.Delete(ctx, userID)

	expectStatus(t, do(t, h, http.MethodPost, "/api/journal", map[string]any{
		"content": "Deep work", "mood": "productive", "tags": "work,focus",
	}, token), http.StatusCreated)
	expectStatus(t, do(t, h, http.MethodGet, "/api/dashboard", nil, token), http.StatusOK)
	expectStatus(t, do(t, h, http.MethodGet, "/api/export?format=json", nil, token), http.StatusOK)

	rec := do(t, h, http.MethodGet, "/healthz", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if resp := decode[healthResponse](t, rec); resp.Database != "ok" {
		t.Fatalf("unexpected database status %q", resp.Database)
	}

	stored, err := store.ListAudit(ctx, 10)
	if err != nil || len(stored) == 0 {
		t.Fatalf("audit rows not persisted: %d, %v", len(stored), err)
	}
}
