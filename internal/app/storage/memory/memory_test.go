package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/export"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/domain/session"
	"github.com/moodtrail/tracker/internal/app/domain/summary"
	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage"
)

func mustUser(t *testing.T, s *Store, email string) user.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), user.User{Name: "Test", Email: email, PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserEmailIsUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustUser(t, s, "a@example.com")

	if _, err := s.CreateUser(ctx, user.User{Email: "A@Example.com"}); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "A@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("lookup by email: %v", err)
	}
	if got.Email != "a@example.com" {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestUpdateUserMovesEmailIndex(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := mustUser(t, s, "a@example.com")
	mustUser(t, s, "b@example.com")

	a.Email = "b@example.com"
	if _, err := s.UpdateUser(ctx, a); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate on taken email, got %v", err)
	}

	a.Email = "c@example.com"
	updated, err := s.UpdateUser(ctx, a)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("created_at changed")
	}
	if _, err := s.GetUserByEmail(ctx, "a@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("old email should be released, got %v", err)
	}
}

func TestJournalListingOrderAndFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := mustUser(t, s, "j@example.com")

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, mood := range []string{"happy", "tired", "happy"} {
		_, err := s.CreateEntry(ctx, journal.Entry{
			UserID:      u.ID,
			Content:     "entry",
			Mood:        mood,
			EnergyLevel: 4 + i*2,
			Tags:        []string{"t"},
			CreatedAt:   base.Add(time.Duration(i) * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("create entry %d: %v", i, err)
		}
	}

	all, err := s.ListEntries(ctx, journal.Filter{UserID: u.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Fatalf("entries not newest first")
	}
	if all[0].User == nil || all[0].User.Email != "j@example.com" {
		t.Fatalf("author not embedded: %+v", all[0].User)
	}

	happy, _ := s.ListEntries(ctx, journal.Filter{UserID: u.ID, Mood: "happy"})
	if len(happy) != 2 {
		t.Fatalf("expected 2 happy entries, got %d", len(happy))
	}

	paged, _ := s.ListEntries(ctx, journal.Filter{UserID: u.ID, Limit: 1, Offset: 1})
	if len(paged) != 1 || paged[0].Mood != "tired" {
		t.Fatalf("unexpected page %+v", paged)
	}

	beyond, _ := s.ListEntries(ctx, journal.Filter{UserID: u.ID, Offset: 10})
	if beyond == nil || len(beyond) != 0 {
		t.Fatalf("expected empty non-nil page, got %#v", beyond)
	}

	avg, _ := s.AverageEnergy(ctx, u.ID, time.Time{}, time.Time{})
	if avg != 6 {
		t.Fatalf("average energy = %v", avg)
	}

	daily, _ := s.DailyEntryCounts(ctx, u.ID, base, base.AddDate(0, 0, 2))
	if daily["2026-05-01"] != 1 || daily["2026-05-02"] != 1 || daily["2026-05-03"] != 0 {
		t.Fatalf("unexpected daily counts %v", daily)
	}

	moods, _ := s.MoodCounts(ctx, u.ID, time.Time{}, time.Time{})
	if len(moods) != 2 || moods[0].Mood != "happy" || moods[0].Count != 2 {
		t.Fatalf("unexpected mood counts %+v", moods)
	}
}

func TestEntryTagsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := mustUser(t, s, "c@example.com")

	tags := []string{"a"}
	e, err := s.CreateEntry(ctx, journal.Entry{UserID: u.ID, Content: "x", Mood: "ok", Tags: tags})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tags[0] = "mutated"

	got, _ := s.GetEntry(ctx, e.ID)
	if got.Tags[0] != "a" {
		t.Fatalf("stored tags aliased caller slice")
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := mustUser(t, s, "del@example.com")
	other := mustUser(t, s, "keep@example.com")

	if _, err := s.CreateEntry(ctx, journal.Entry{UserID: u.ID, Content: "x", Mood: "ok"}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := s.CreateEntry(ctx, journal.Entry{UserID: other.ID, Content: "y", Mood: "ok"}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := s.CreateReminder(ctx, reminder.Reminder{UserID: u.ID, Title: "r", SentAt: time.Now()}); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if _, err := s.CreateSummary(ctx, summary.Summary{UserID: u.ID, Summary: "s"}); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if _, err := s.CreateExportLog(ctx, export.Log{UserID: u.ID, Format: export.FormatCSV}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := s.CreateSession(ctx, session.Session{UserID: u.ID, TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("session: %v", err)
	}

	stats, _ := s.UserStats(ctx, u.ID)
	if stats != (user.Stats{JournalEntries: 1, Reminders: 1, Summaries: 1, Exports: 1}) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSessionByTokenHash(ctx, "h"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("session survived delete")
	}
	n, _ := s.CountEntries(ctx, other.ID, time.Time{}, time.Time{})
	if n != 1 {
		t.Fatalf("other user's entries touched: %d", n)
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 1 || users[0].ID != other.ID {
		t.Fatalf("unexpected users %+v", users)
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestDueRemindersAndSessions(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := mustUser(t, s, "r@example.com")
	now := time.Now().UTC()

	due, _ := s.CreateReminder(ctx, reminder.Reminder{UserID: u.ID, Title: "due", Active: true, SentAt: now.Add(-time.Minute)})
	_, _ = s.CreateReminder(ctx, reminder.Reminder{UserID: u.ID, Title: "later", Active: true, SentAt: now.Add(time.Hour)})
	_, _ = s.CreateReminder(ctx, reminder.Reminder{UserID: u.ID, Title: "off", Active: false, SentAt: now.Add(-time.Hour)})

	list, _ := s.ListDueReminders(ctx, now, 10)
	if len(list) != 1 || list[0].ID != due.ID {
		t.Fatalf("unexpected due reminders %+v", list)
	}

	_, _ = s.CreateSession(ctx, session.Session{UserID: u.ID, TokenHash: "old", ExpiresAt: now.Add(-time.Second)})
	_, _ = s.CreateSession(ctx, session.Session{UserID: u.ID, TokenHash: "new", ExpiresAt: now.Add(time.Hour)})
	removed, _ := s.DeleteExpiredSessions(ctx, now)
	if removed != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", removed)
	}
}
