// Package dashboard computes the per-user activity overview and caches it.
package dashboard

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/moodtrail/tracker/internal/app/cache"
	"github.com/moodtrail/tracker/internal/app/domain/dashboard"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/storage"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

const (
	// DefaultTTL applies when the configured TTL is not positive.
	DefaultTTL = 30 * time.Second

	recentEntries = 5
	activityDays  = 7
	keyPrefix     = "dashboard:"
)

// Stores groups the read dependencies of the dashboard.
type Stores struct {
	Users     storage.UserStore
	Journal   storage.JournalStore
	Reminders storage.ReminderStore
	Summaries storage.SummaryStore
}

// Service builds dashboards. A nil cache disables caching.
type Service struct {
	stores Stores
	cache  cache.Cache
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// New constructs the dashboard service.
func New(stores Stores, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dashboard")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{stores: stores, cache: c, ttl: ttl, log: log, now: time.Now}
}

func cacheKey(userID string) string { return keyPrefix + userID }

// Get returns the dashboard for userID, served from cache when fresh.
func (s *Service) Get(ctx context.Context, userID string) (dashboard.Dashboard, error) {
	if _, err := s.stores.Users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return dashboard.Dashboard{}, apperrors.NotFound("User not found")
		}
		return dashboard.Dashboard{}, err
	}

	if s.cache != nil {
		var cached dashboard.Dashboard
		hit, err := cache.GetJSON(ctx, s.cache, cacheKey(userID), &cached)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("dashboard cache read failed")
		}
		if hit {
			return cached, nil
		}
	}

	d, err := s.compute(ctx, userID)
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, cacheKey(userID), d, s.ttl); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("dashboard cache write failed")
		}
	}
	return d, nil
}

// Invalidate drops the cached dashboard of userID.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil || userID == "" {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(userID)); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("dashboard cache invalidation failed")
	}
}

func (s *Service) compute(ctx context.Context, userID string) (dashboard.Dashboard, error) {
	var (
		d    dashboard.Dashboard
		err  error
		zero time.Time
	)
	now := s.now().UTC()
	weekStart := journal.WeekStart(now)

	if d.TotalStats.JournalEntries, err = s.stores.Journal.CountEntries(ctx, userID, zero, zero); err != nil {
		return d, err
	}
	if d.TotalStats.Reminders, err = s.stores.Reminders.CountReminders(ctx, userID, zero, zero); err != nil {
		return d, err
	}
	if d.TotalStats.Summaries, err = s.stores.Summaries.CountSummaries(ctx, userID); err != nil {
		return d, err
	}
	if d.WeeklyStats.JournalEntries, err = s.stores.Journal.CountEntries(ctx, userID, weekStart, zero); err != nil {
		return d, err
	}
	if d.WeeklyStats.Reminders, err = s.stores.Reminders.CountReminders(ctx, userID, weekStart, zero); err != nil {
		return d, err
	}

	if d.RecentJournalEntries, err = s.stores.Journal.ListEntries(ctx, journal.Filter{UserID: userID, Limit: recentEntries}); err != nil {
		return d, err
	}

	moods, err := s.stores.Journal.MoodCounts(ctx, userID, zero, zero)
	if err != nil {
		return d, err
	}
	d.MoodDistribution = Distribution(moods)

	today := now.Truncate(24 * time.Hour)
	from, to := today.AddDate(0, 0, -(activityDays - 1)), today.AddDate(0, 0, 1)
	entries, err := s.stores.Journal.DailyEntryCounts(ctx, userID, from, to)
	if err != nil {
		return d, err
	}
	reminders, err := s.stores.Reminders.DailyReminderCounts(ctx, userID, from, to)
	if err != nil {
		return d, err
	}
	d.DailyActivity = make([]dashboard.DailyActivity, 0, activityDays)
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		key := journal.DayKey(day)
		d.DailyActivity = append(d.DailyActivity, dashboard.DailyActivity{
			Date:           key,
			JournalEntries: entries[key],
			Reminders:      reminders[key],
		})
	}

	avg, err := s.stores.Journal.AverageEnergy(ctx, userID, zero, zero)
	if err != nil {
		return d, err
	}
	d.AverageEnergy = math.Round(avg*10) / 10
	return d, nil
}

// Distribution sorts mood counts by count descending, then mood, and adds the
// rounded share of each.
func Distribution(counts []journal.MoodCount) []dashboard.MoodShare {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	out := make([]dashboard.MoodShare, 0, len(counts))
	for _, c := range counts {
		share := dashboard.MoodShare{Mood: c.Mood, Count: c.Count}
		if total > 0 {
			share.Percentage = int(math.Round(float64(c.Count) * 100 / float64(total)))
		}
		out = append(out, share)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Mood < out[j].Mood
	})
	return out
}
