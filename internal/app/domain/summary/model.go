package summary

import (
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/user"
)

// DigestModel names the built-in weekly digest generator.
const DigestModel = "tracker-digest-v1"

// Summary is a weekly written summary of a user's activity.
type Summary struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	WeekStart time.Time    `json:"weekStart"`
	WeekEnd   time.Time    `json:"weekEnd"`
	Summary   string       `json:"summary"`
	AIModel   string       `json:"aiModel"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	User      *user.Author `json:"user,omitempty"`
}
