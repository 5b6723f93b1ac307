package user

import "time"

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string     `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// Stats counts the resources owned by a user.
type Stats struct {
	JournalEntries int `json:"journalEntries" db:"journal_entries"`
	Reminders      int `json:"reminders" db:"reminders"`
	Summaries      int `json:"summaries" db:"summaries"`
	Exports        int `json:"exportLogs" db:"exports"`
}

// Listing is a user together with resource counts, as returned to admins.
type Listing struct {
	User
	Count Stats `json:"_count"`
}

// Author is the public subset of a user embedded in owned resources.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthorOf projects u onto its public fields.
func AuthorOf(u User) *Author {
	return &Author{ID: u.ID, Name: u.Name, Email: u.Email}
}
