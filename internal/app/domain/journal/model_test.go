package journal

import (
	"testing"
	"time"
)

func TestFilterMatches(t *testing.T) {
	created := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	entry := Entry{
		UserID:    "u1",
		Title:     "Morning run",
		Content:   "Ran along the river before work",
		Mood:      "productive",
		Tags:      []string{"Fitness", "outdoors"},
		CreatedAt: created,
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"other user", Filter{UserID: "u2"}, false},
		{"content search ignores case", Filter{Search: "RIVER"}, true},
		{"title search", Filter{Search: "morning"}, true},
		{"tag substring search", Filter{Search: "fit"}, true},
		{"search miss", Filter{Search: "swim"}, false},
		{"mood all", Filter{Mood: "all"}, true},
		{"mood match", Filter{Mood: "Productive"}, true},
		{"mood miss", Filter{Mood: "sad"}, false},
		{"date match", Filter{Date: "2026-03-14"}, true},
		{"date miss", Filter{Date: "2026-03-15"}, false},
		{"tag exact", Filter{Tag: "fitness"}, true},
		{"tag needs whole value", Filter{Tag: "fit"}, false},
		{"from inclusive", Filter{From: created}, true},
		{"to exclusive", Filter{To: created}, false},
		{"combined", Filter{UserID: "u1", Mood: "productive", Search: "run", Date: "2026-03-14"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(entry); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterPage(t *testing.T) {
	limit, offset := Filter{}.Page()
	if limit != DefaultLimit || offset != 0 {
		t.Fatalf("defaults = %d/%d", limit, offset)
	}
	limit, offset = Filter{Limit: 10_000, Offset: -3}.Page()
	if limit != MaxLimit || offset != 0 {
		t.Fatalf("clamped = %d/%d", limit, offset)
	}
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2026, 1, 2, 3, 0, 0, 0, loc)
	if got := DayKey(local); got != "2026-01-01" {
		t.Fatalf("DayKey = %s", got)
	}
}

func TestWeekStartIsSundayUTC(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), "2026-03-15"},
		{time.Date(2026, 3, 21, 23, 59, 0, 0, time.UTC), "2026-03-15"},
		{time.Date(2026, 3, 22, 8, 0, 0, 0, time.UTC), "2026-03-22"},
		{time.Date(2026, 3, 22, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), "2026-03-15"},
	}
	for _, tc := range cases {
		if got := DayKey(WeekStart(tc.in)); got != tc.want {
			t.Fatalf("WeekStart(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
