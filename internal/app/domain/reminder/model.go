package reminder

import "time"

// Channel is how a reminder is delivered.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Repeat controls whether a delivered reminder schedules a follow-up.
type Repeat string

const (
	RepeatNone    Repeat = "none"
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Reminder is a scheduled notification. SentAt is the time it is due to be
// (or was) sent; DeliveredAt is set once the dispatcher delivered it.
type Reminder struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	ReminderType string     `json:"reminderType"`
	Via          Channel    `json:"via"`
	Repeat       Repeat     `json:"repeat"`
	Priority     Priority   `json:"priority"`
	Active       bool       `json:"isActive"`
	SentAt       time.Time  `json:"sentAt"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Filter narrows a reminder listing.
type Filter struct {
	UserID     string
	ActiveOnly bool
}

// Next returns the following occurrence for a repeating reminder, and false
// when the reminder does not repeat.
func (r Repeat) Next(t time.Time) (time.Time, bool) {
	switch r {
	case RepeatDaily:
		return t.AddDate(0, 0, 1), true
	case RepeatWeekly:
		return t.AddDate(0, 0, 7), true
	case RepeatMonthly:
		return t.AddDate(0, 1, 0), true
	}
	return time.Time{}, false
}
