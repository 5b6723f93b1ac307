package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/moodtrail/tracker/internal/config"
)

func TestOpenRequiresDriverAndDSN(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatalf("expected error for empty driver")
	}
	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "postgres"}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestTuneAppliesPoolLimits(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	Tune(db, config.DatabaseConfig{MaxOpenConns: 7})
	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("max open conns = %d", got)
	}
}
