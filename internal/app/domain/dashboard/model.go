package dashboard

import "github.com/moodtrail/tracker/internal/app/domain/journal"

// Dashboard aggregates a user's activity.
type Dashboard struct {
	TotalStats           TotalStats      `json:"totalStats"`
	WeeklyStats          WeeklyStats     `json:"weeklyStats"`
	RecentJournalEntries []journal.Entry `json:"recentJournalEntries"`
	MoodDistribution     []MoodShare     `json:"moodDistribution"`
	DailyActivity        []DailyActivity `json:"dailyActivity"`
	AverageEnergy        float64         `json:"averageEnergy"`
}

type TotalStats struct {
	JournalEntries int `json:"journalEntries"`
	Reminders      int `json:"reminders"`
	Summaries      int `json:"summaries"`
}

type WeeklyStats struct {
	JournalEntries int `json:"journalEntries"`
	Reminders      int `json:"reminders"`
}

// MoodShare is a mood bucket with its share of all entries, in percent.
type MoodShare struct {
	Mood       string `json:"mood"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// DailyActivity counts a single UTC day. Date is YYYY-MM-DD.
type DailyActivity struct {
	Date           string `json:"date"`
	JournalEntries int    `json:"journalEntries"`
	Reminders      int    `json:"reminders"`
}
