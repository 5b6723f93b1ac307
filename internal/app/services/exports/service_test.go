package exports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodtrail/tracker/internal/app/domain/export"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage/memory"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

func setup(t *testing.T) (*Service, user.User) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	u, err := store.CreateUser(ctx, user.User{Name: "Dana", Email: "dana@example.com"})
	require.NoError(t, err)

	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	_, err = store.CreateEntry(ctx, journal.Entry{UserID: u.ID, Title: "Run", Content: "5k, felt \"great\"", Mood: "happy", EnergyLevel: 8, Tags: []string{"run", "outdoors"}, CreatedAt: base})
	require.NoError(t, err)
	_, err = store.CreateEntry(ctx, journal.Entry{UserID: u.ID, Content: "long day", Mood: "tired", EnergyLevel: 3, CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	svc := New(store, store, logger.NewDiscard())
	svc.now = func() time.Time { return base.Add(48 * time.Hour) }
	return svc, u
}

func TestExportCSV(t *testing.T) {
	svc, u := setup(t)

	res, err := svc.Export(context.Background(), u.ID, "CSV")
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, res.Format)
	assert.Equal(t, "journal-20260403-080000.csv", res.Filename)
	assert.Equal(t, 2, res.Log.EntryCount)

	rows, err := csv.NewReader(strings.NewReader(string(res.Body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{rows[1][0], "2026-04-01T08:00:00Z", "Run", "happy", "8", "run;outdoors", "5k, felt \"great\""}, rows[1])
	assert.Equal(t, "tired", rows[2][3])
}

func TestExportJSONAndLogs(t *testing.T) {
	svc, u := setup(t)
	ctx := context.Background()

	res, err := svc.Export(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", res.ContentType)

	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(res.Body, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "happy", entries[0].Mood)
	assert.Nil(t, entries[0].User)

	_, err = svc.Export(ctx, u.ID, export.FormatCSV)
	require.NoError(t, err)

	logs, err := svc.Logs(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, export.FormatCSV, logs[0].Format)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, u := setup(t)
	_, err := svc.Export(context.Background(), u.ID, "xml")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}
