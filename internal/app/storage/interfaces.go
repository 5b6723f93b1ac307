package storage

import (
	"context"
	"errors"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/audit"
	"github.com/moodtrail/tracker/internal/app/domain/export"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/record"
	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/domain/session"
	"github.com/moodtrail/tracker/internal/app/domain/summary"
	"github.com/moodtrail/tracker/internal/app/domain/user"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("storage: duplicate")
)

// UserStore persists users. DeleteUser removes everything the user owns.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.Listing, error)
	DeleteUser(ctx context.Context, id string) error
	UserStats(ctx context.Context, id string) (user.Stats, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// SessionStore persists issued token sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s session.Session) (session.Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (session.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// JournalStore persists journal entries. A zero from/to leaves that side of
// the range open.
type JournalStore interface {
	CreateEntry(ctx context.Context, e journal.Entry) (journal.Entry, error)
	UpdateEntry(ctx context.Context, e journal.Entry) (journal.Entry, error)
	GetEntry(ctx context.Context, id string) (journal.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
	CountEntries(ctx context.Context, userID string, from, to time.Time) (int, error)
	MoodCounts(ctx context.Context, userID string, from, to time.Time) ([]journal.MoodCount, error)
	DailyEntryCounts(ctx context.Context, userID string, from, to time.Time) (map[string]int, error)
	AverageEnergy(ctx context.Context, userID string, from, to time.Time) (float64, error)
	ListActiveUserIDs(ctx context.Context, from, to time.Time) ([]string, error)
}

// ReminderStore persists reminders.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error)
	UpdateReminder(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error)
	GetReminder(ctx context.Context, id string) (reminder.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	ListReminders(ctx context.Context, filter reminder.Filter) ([]reminder.Reminder, error)
	ListDueReminders(ctx context.Context, now time.Time, limit int) ([]reminder.Reminder, error)
	CountReminders(ctx context.Context, userID string, from, to time.Time) (int, error)
	DailyReminderCounts(ctx context.Context, userID string, from, to time.Time) (map[string]int, error)
}

// SummaryStore persists weekly summaries.
type SummaryStore interface {
	CreateSummary(ctx context.Context, s summary.Summary) (summary.Summary, error)
	GetSummary(ctx context.Context, id string) (summary.Summary, error)
	DeleteSummary(ctx context.Context, id string) error
	ListSummaries(ctx context.Context, userID string) ([]summary.Summary, error)
	FindSummaryForWeek(ctx context.Context, userID string, weekStart time.Time) (summary.Summary, error)
	CountSummaries(ctx context.Context, userID string) (int, error)
}

// ExportStore persists export history.
type ExportStore interface {
	CreateExportLog(ctx context.Context, l export.Log) (export.Log, error)
	ListExportLogs(ctx context.Context, userID string) ([]export.Log, error)
}

// RecordStore persists free-form name/value records.
type RecordStore interface {
	CreateRecord(ctx context.Context, r record.Record) (record.Record, error)
	ListRecords(ctx context.Context) ([]record.Record, error)
}

// AuditStore persists audited API requests.
type AuditStore interface {
	AppendAudit(ctx context.Context, e audit.Entry) error
	ListAudit(ctx context.Context, limit int) ([]audit.Entry, error)
}
