package journal

import (
	"strings"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/user"
)

const (
	DefaultEnergyLevel = 5
	MinEnergyLevel     = 1
	MaxEnergyLevel     = 10

	DefaultLimit = 100
	MaxLimit     = 500
)

// Entry is a single journal entry.
type Entry struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Title       string       `json:"title,omitempty"`
	Content     string       `json:"content"`
	Mood        string       `json:"mood"`
	EnergyLevel int          `json:"energyLevel"`
	Tags        []string     `json:"tags"`
	Weather     string       `json:"weather,omitempty"`
	Location    string       `json:"location,omitempty"`
	Activities  []string     `json:"activities"`
	Goals       string       `json:"goals,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	User        *user.Author `json:"user,omitempty"`
}

// Filter narrows a journal listing. Zero values disable a criterion.
type Filter struct {
	UserID string
	// Search matches content, title or any tag, case-insensitively.
	Search string
	Mood   string
	// Date is a UTC calendar day in YYYY-MM-DD form.
	Date   string
	Tag    string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// MoodCount is one bucket of the mood distribution.
type MoodCount struct {
	Mood  string `json:"mood" db:"mood"`
	Count int    `json:"count" db:"count"`
}

// DayLayout is the calendar day format used for filters and daily buckets.
const DayLayout = "2006-01-02"

// DayKey returns the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// WeekStart returns Sunday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// AnyMood reports whether mood disables mood filtering.
func AnyMood(mood string) bool {
	return mood == "" || strings.EqualFold(mood, "all")
}

// Matches reports whether e passes every criterion of f except paging.
func (f Filter) Matches(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !AnyMood(f.Mood) && !strings.EqualFold(e.Mood, f.Mood) {
		return false
	}
	if f.Date != "" && DayKey(e.CreatedAt) != f.Date {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	if f.Tag != "" && !containsFold(e.Tags, f.Tag, false) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		lq := strings.ToLower(q)
		if !strings.Contains(strings.ToLower(e.Content), lq) &&
			!strings.Contains(strings.ToLower(e.Title), lq) &&
			!containsFold(e.Tags, q, true) {
			return false
		}
	}
	return true
}

// Page clamps limit and offset to the allowed range.
func (f Filter) Page() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func containsFold(values []string, needle string, substring bool) bool {
	ln := strings.ToLower(needle)
	for _, v := range values {
		lv := strings.ToLower(v)
		if substring && strings.Contains(lv, ln) {
			return true
		}
		if !substring && lv == ln {
			return true
		}
	}
	return false
}
