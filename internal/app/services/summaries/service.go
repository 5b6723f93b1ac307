// Package summaries stores weekly summaries and generates the built-in digest
// from a week of journal entries and reminders.
package summaries

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/summary"
	"github.com/moodtrail/tracker/internal/app/metrics"
	"github.com/moodtrail/tracker/internal/app/scheduler"
	"github.com/moodtrail/tracker/internal/app/storage"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

// CreateInput is a caller-written summary. Times accept RFC3339 or YYYY-MM-DD.
type CreateInput struct {
	WeekStart string `json:"weekStart"`
	WeekEnd   string `json:"weekEnd"`
	Summary   string `json:"summary"`
	AIModel   string `json:"aiModel"`
}

// Invalidator drops cached read models of a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

const topTagCount = 3

// Service manages summaries.
type Service struct {
	users       storage.UserStore
	store       storage.SummaryStore
	journal     storage.JournalStore
	reminders   storage.ReminderStore
	invalidator Invalidator
	log         *logger.Logger
	now         func() time.Time
}

// New constructs a summary service.
func New(users storage.UserStore, store storage.SummaryStore, journalStore storage.JournalStore, reminders storage.ReminderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("summaries")
	}
	return &Service{
		users:     users,
		store:     store,
		journal:   journalStore,
		reminders: reminders,
		log:       log,
		now:       time.Now,
	}
}

// WithInvalidator registers a cache to clear after writes.
func (s *Service) WithInvalidator(i Invalidator) { s.invalidator = i }

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, userID)
	}
}

// ParseTime accepts an RFC3339 timestamp or a YYYY-MM-DD day and returns UTC.
func ParseTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(journal.DayLayout, raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperrors.InvalidInput(field + " must be an RFC3339 timestamp or YYYY-MM-DD date").
		WithDetails("field", field)
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("Summary not found")
	}
	return err
}

// Create stores a caller-written summary.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (summary.Summary, error) {
	in.Summary = strings.TrimSpace(in.Summary)
	in.AIModel = strings.TrimSpace(in.AIModel)
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(in.WeekStart) == "" || strings.TrimSpace(in.WeekEnd) == "" ||
		in.Summary == "" || in.AIModel == "" {
		return summary.Summary{}, apperrors.InvalidInput("User ID, week start, week end, summary, and AI model are required")
	}
	start, err := ParseTime("weekStart", in.WeekStart)
	if err != nil {
		return summary.Summary{}, err
	}
	end, err := ParseTime("weekEnd", in.WeekEnd)
	if err != nil {
		return summary.Summary{}, err
	}
	if end.Before(start) {
		return summary.Summary{}, apperrors.InvalidInput("weekEnd must not precede weekStart")
	}

	created, err := s.store.CreateSummary(ctx, summary.Summary{
		UserID:    userID,
		WeekStart: start,
		WeekEnd:   end,
		Summary:   in.Summary,
		AIModel:   in.AIModel,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return summary.Summary{}, apperrors.NotFound("User not found")
		}
		return summary.Summary{}, err
	}
	s.invalidate(ctx, userID)
	s.log.WithField("summary_id", created.ID).WithField("user_id", userID).Info("summary created")
	return created, nil
}

// List returns a user's summaries, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]summary.Summary, error) {
	return s.store.ListSummaries(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id string) (summary.Summary, error) {
	sm, err := s.store.GetSummary(ctx, strings.TrimSpace(id))
	return sm, notFound(err)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	sm, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSummary(ctx, sm.ID); err != nil {
		return notFound(err)
	}
	s.invalidate(ctx, sm.UserID)
	s.log.WithField("summary_id", sm.ID).Info("summary deleted")
	return nil
}

// LastWeek returns the start of the week before the one containing now.
func LastWeek(now time.Time) time.Time {
	return journal.WeekStart(now).AddDate(0, 0, -7)
}

// Generate builds the digest for the week starting at weekStart, which is
// truncated to its UTC day. A zero weekStart means last week. An existing
// summary for the same week is returned unchanged; created reports whether a
// new one was stored.
func (s *Service) Generate(ctx context.Context, userID string, weekStart time.Time) (sm summary.Summary, created bool, err error) {
	if weekStart.IsZero() {
		weekStart = LastWeek(s.now())
	}
	weekStart = weekStart.UTC().Truncate(24 * time.Hour)
	weekEnd := weekStart.AddDate(0, 0, 7)

	if s.users != nil {
		if _, err := s.users.GetUser(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return summary.Summary{}, false, apperrors.NotFound("User not found")
			}
			return summary.Summary{}, false, err
		}
	}

	existing, err := s.store.FindSummaryForWeek(ctx, userID, weekStart)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return summary.Summary{}, false, err
	}

	text, err := s.digest(ctx, userID, weekStart, weekEnd)
	if err != nil {
		return summary.Summary{}, false, err
	}

	sm, err = s.store.CreateSummary(ctx, summary.Summary{
		UserID:    userID,
		WeekStart: weekStart,
		WeekEnd:   weekEnd.AddDate(0, 0, -1),
		Summary:   text,
		AIModel:   summary.DigestModel,
	})
	if err != nil {
		return summary.Summary{}, false, notFound(err)
	}
	s.invalidate(ctx, userID)
	metrics.RecordSummaryGenerated()
	s.log.WithField("summary_id", sm.ID).
		WithField("user_id", userID).
		WithField("week_start", journal.DayKey(weekStart)).
		Info("weekly digest generated")
	return sm, true, nil
}

func (s *Service) digest(ctx context.Context, userID string, from, to time.Time) (string, error) {
	count, err := s.journal.CountEntries(ctx, userID, from, to)
	if err != nil {
		return "", err
	}
	reminders, err := s.reminders.CountReminders(ctx, userID, from, to)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Week of %s to %s: ", journal.DayKey(from), journal.DayKey(to.AddDate(0, 0, -1)))
	if count == 0 {
		b.WriteString("no journal entries recorded.")
	} else {
		moods, err := s.journal.MoodCounts(ctx, userID, from, to)
		if err != nil {
			return "", err
		}
		avg, err := s.journal.AverageEnergy(ctx, userID, from, to)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(&b, "%d journal %s.", count, plural(count, "entry", "entries"))
		sort.SliceStable(moods, func(i, j int) bool {
			if moods[i].Count != moods[j].Count {
				return moods[i].Count > moods[j].Count
			}
			return moods[i].Mood < moods[j].Mood
		})
		parts := make([]string, 0, len(moods))
		for _, m := range moods {
			parts = append(parts, fmt.Sprintf("%s %d", m.Mood, m.Count))
		}
		fmt.Fprintf(&b, " Moods: %s.", strings.Join(parts, ", "))
		fmt.Fprintf(&b, " Average energy %.1f/10.", math.Round(avg*10)/10)
		entries, err := s.weekEntries(ctx, userID, from, to)
		if err != nil {
			return "", err
		}
		if tags := topTags(entries, topTagCount); len(tags) > 0 {
			fmt.Fprintf(&b, " Top tags: %s.", strings.Join(tags, ", "))
		}
	}
	fmt.Fprintf(&b, " %d %s scheduled.", reminders, plural(reminders, "reminder", "reminders"))
	return b.String(), nil
}

// weekEntries pages through every entry in [from, to).
func (s *Service) weekEntries(ctx context.Context, userID string, from, to time.Time) ([]journal.Entry, error) {
	var all []journal.Entry
	for offset := 0; ; offset += journal.MaxLimit {
		page, err := s.journal.ListEntries(ctx, journal.Filter{UserID: userID, From: from, To: to, Limit: journal.MaxLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < journal.MaxLimit {
			return all, nil
		}
	}
}

func topTags(entries []journal.Entry, n int) []string {
	counts := make(map[string]int)
	for _, e := range entries {
		for _, tag := range e.Tags {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				counts[tag]++
			}
		}
	}
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// GenerateLastWeek produces last week's digest for every user who wrote at
// least one entry that week. Per-user failures are logged and skipped.
func (s *Service) GenerateLastWeek(ctx context.Context) (int, error) {
	start := LastWeek(s.now())
	ids, err := s.journal.ListActiveUserIDs(ctx, start, start.AddDate(0, 0, 7))
	if err != nil {
		return 0, err
	}
	generated := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return generated, ctx.Err()
		}
		_, created, err := s.Generate(ctx, id, start)
		if err != nil {
			s.log.WithError(err).WithField("user_id", id).Warn("weekly digest failed")
			continue
		}
		if created {
			generated++
		}
	}
	s.log.WithField("week_start", journal.DayKey(start)).
		WithField("users", len(ids)).
		WithField("generated", generated).
		Info("weekly digests finished")
	return generated, nil
}

// Job wraps GenerateLastWeek in a cron job running on spec.
func (s *Service) Job(spec string) *scheduler.Job {
	return scheduler.NewJob("weekly-summaries", spec, func(ctx context.Context) error {
		_, err := s.GenerateLastWeek(ctx)
		return err
	}, s.log)
}
