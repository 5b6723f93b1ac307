package export

import "time"

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Log records a completed export.
type Log struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Format     Format    `json:"format"`
	EntryCount int       `json:"entryCount"`
	CreatedAt  time.Time `json:"createdAt"`
}
