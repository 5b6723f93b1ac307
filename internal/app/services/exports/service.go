// Package exports renders a user's journal as JSON or CSV and keeps a history
// of completed exports.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/export"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/metrics"
	"github.com/moodtrail/tracker/internal/app/storage"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Header is the first CSV row.
var Header = []string{"id", "createdAt", "title", "mood", "energyLevel", "tags", "content"}

// Result is a rendered export.
type Result struct {
	Format      export.Format
	ContentType string
	Filename    string
	Body        []byte
	Log         export.Log
}

type Service struct {
	journal storage.JournalStore
	logs    storage.ExportStore
	log     *logger.Logger
	now     func() time.Time
}

func New(journalStore storage.JournalStore, logs storage.ExportStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("exports")
	}
	return &Service{journal: journalStore, logs: logs, log: log, now: time.Now}
}

// ParseFormat maps a query value onto a format; empty means json.
func ParseFormat(raw string) (export.Format, error) {
	switch f := export.Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", export.FormatJSON:
		return export.FormatJSON, nil
	case export.FormatCSV:
		return f, nil
	}
	return "", apperrors.InvalidInput("format must be one of: json, csv").WithDetails("field", "format")
}

// Export renders every journal entry of userID, oldest first, and records the
// export.
func (s *Service) Export(ctx context.Context, userID string, format export.Format) (Result, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return Result{}, err
	}

	entries, err := s.allEntries(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Format: format}
	stamp := s.now().UTC().Format("20060102-150405")
	switch format {
	case export.FormatCSV:
		res.Body, err = EncodeCSV(entries)
		res.ContentType = "text/csv; charset=utf-8"
		res.Filename = fmt.Sprintf("journal-%s.csv", stamp)
	default:
		res.Body, err = json.MarshalIndent(entries, "", "  ")
		res.ContentType = "application/json"
		res.Filename = fmt.Sprintf("journal-%s.json", stamp)
	}
	if err != nil {
		return Result{}, apperrors.Internal("Export failed", err)
	}

	res.Log, err = s.logs.CreateExportLog(ctx, export.Log{UserID: userID, Format: format, EntryCount: len(entries)})
	if err != nil {
		return Result{}, err
	}
	metrics.RecordExport(string(format))
	s.log.WithField("user_id", userID).
		WithField("format", format).
		WithField("entries", len(entries)).
		Info("journal exported")
	return res, nil
}

func (s *Service) allEntries(ctx context.Context, userID string) ([]journal.Entry, error) {
	all := []journal.Entry{}
	for offset := 0; ; offset += journal.MaxLimit {
		page, err := s.journal.ListEntries(ctx, journal.Filter{UserID: userID, Limit: journal.MaxLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < journal.MaxLimit {
			break
		}
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	for i := range all {
		all[i].User = nil
	}
	return all, nil
}

// EncodeCSV writes entries under Header. Tags are joined with ";".
func EncodeCSV(entries []journal.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, e := range entries {
		row := []string{
			e.ID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Title,
			e.Mood,
			strconv.Itoa(e.EnergyLevel),
			strings.Join(e.Tags, ";"),
			e.Content,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Logs returns the export history of userID, newest first.
func (s *Service) Logs(ctx context.Context, userID string) ([]export.Log, error) {
	return s.logs.ListExportLogs(ctx, userID)
}
