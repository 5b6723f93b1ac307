package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/moodtrail/tracker/internal/app/domain/audit"
	"github.com/moodtrail/tracker/internal/app/domain/export"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/record"
	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/domain/session"
	"github.com/moodtrail/tracker/internal/app/domain/summary"
	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)
var _ storage.ReminderStore = (*Store)(nil)
var _ storage.SummaryStore = (*Store)(nil)
var _ storage.ExportStore = (*Store)(nil)
var _ storage.RecordStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapErr translates driver errors into storage sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return storage.ErrDuplicate
		case pqForeignKeyViolation:
			return storage.ErrNotFound
		}
	}
	return err
}

func expectRow(result sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// clauses accumulates a WHERE clause with positional arguments. Every "?" in
// an expression is bound to the same argument.
type clauses struct {
	parts []string
	args  []any
}

func (c *clauses) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.parts = append(c.parts, strings.ReplaceAll(expr, "?", fmt.Sprintf("$%d", len(c.args))))
}

func (c *clauses) between(column string, from, to time.Time) {
	if !from.IsZero() {
		c.add(column+" >= ?", from.UTC())
	}
	if !to.IsZero() {
		c.add(column+" < ?", to.UTC())
	}
}

func (c *clauses) where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func (c *clauses) next() string {
	return fmt.Sprintf("$%d", len(c.args)+1)
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// --- UserStore --------------------------------------------------------------

const userColumns = `id, name, email, password_hash, last_login_at, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	u.ID = newID(u.ID)
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :email, :password_hash, :last_login_at, :created_at, :updated_at)
	`, u)
	if err != nil {
		return user.User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, password_hash = $4, updated_at = $5
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.UpdatedAt)
	if err := expectRow(result, err); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return u, mapErr(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return u, mapErr(err)
}

const statsColumns = `
	(SELECT COUNT(*) FROM journal_entries j WHERE j.user_id = u.id) AS journal_entries,
	(SELECT COUNT(*) FROM reminders r WHERE r.user_id = u.id) AS reminders,
	(SELECT COUNT(*) FROM summaries s WHERE s.user_id = u.id) AS summaries,
	(SELECT COUNT(*) FROM export_logs x WHERE x.user_id = u.id) AS exports`

type listingRow struct {
	user.User
	user.Stats
}

func (s *Store) ListUsers(ctx context.Context) ([]user.Listing, error) {
	var rows []listingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT u.id, u.name, u.email, u.password_hash, u.last_login_at, u.created_at, u.updated_at,`+statsColumns+`
		FROM users u
		ORDER BY u.created_at
	`)
	if err != nil {
		return nil, err
	}
	out := make([]user.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, user.Listing{User: r.User, Count: r.Stats})
	}
	return out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	// owned rows go with the user through ON DELETE CASCADE
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return expectRow(result, err)
}

func (s *Store) UserStats(ctx context.Context, id string) (user.Stats, error) {
	var st user.Stats
	err := s.db.GetContext(ctx, &st, `SELECT `+statsColumns+` FROM users u WHERE u.id = $1`, id)
	return st, mapErr(err)
}

func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
	return expectRow(result, err)
}

// --- SessionStore -----------------------------------------------------------

type sessionRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r sessionRow) model() session.Session {
	return session.Session{ID: r.ID, UserID: r.UserID, TokenHash: r.TokenHash, ExpiresAt: r.ExpiresAt.UTC(), CreatedAt: r.CreatedAt.UTC()}
}

func (s *Store) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	sess.ID = newID(sess.ID)
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt.UTC(), sess.CreatedAt)
	if err != nil {
		return session.Session{}, mapErr(err)
	}
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (session.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return session.Session{}, mapErr(err)
	}
	return row.model(), nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return expectRow(result, err)
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// --- JournalStore -----------------------------------------------------------

type entryRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Content     string         `db:"content"`
	Mood        string         `db:"mood"`
	EnergyLevel int            `db:"energy_level"`
	Tags        pq.StringArray `db:"tags"`
	Weather     string         `db:"weather"`
	Location    string         `db:"location"`
	Activities  pq.StringArray `db:"activities"`
	Goals       string         `db:"goals"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	AuthorName  sql.NullString `db:"author_name"`
	AuthorEmail sql.NullString `db:"author_email"`
}

func (r entryRow) model() journal.Entry {
	e := journal.Entry{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Content:     r.Content,
		Mood:        r.Mood,
		EnergyLevel: r.EnergyLevel,
		Tags:        append([]string{}, r.Tags...),
		Weather:     r.Weather,
		Location:    r.Location,
		Activities:  append([]string{}, r.Activities...),
		Goals:       r.Goals,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.AuthorEmail.Valid {
		e.User = &user.Author{ID: r.UserID, Name: r.AuthorName.String, Email: r.AuthorEmail.String}
	}
	return e
}

const entrySelect = `
	SELECT e.id, e.user_id, e.title, e.content, e.mood, e.energy_level, e.tags,
	       e.weather, e.location, e.activities, e.goals, e.created_at, e.updated_at,
	       u.name AS author_name, u.email AS author_email
	FROM journal_entries e
	LEFT JOIN users u ON u.id = e.user_id`

func (s *Store) CreateEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	e.ID = newID(e.ID)
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, user_id, title, content, mood, energy_level, tags, weather, location, activities, goals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.UserID, e.Title, e.Content, e.Mood, e.EnergyLevel, pq.Array(nonNil(e.Tags)),
		e.Weather, e.Location, pq.Array(nonNil(e.Activities)), e.Goals, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return journal.Entry{}, mapErr(err)
	}
	return s.GetEntry(ctx, e.ID)
}

func (s *Store) UpdateEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE journal_entries
		SET title = $2, content = $3, mood = $4, energy_level = $5, tags = $6,
		    weather = $7, location = $8, activities = $9, goals = $10, updated_at = $11
		WHERE id = $1
	`, e.ID, e.Title, e.Content, e.Mood, e.EnergyLevel, pq.Array(nonNil(e.Tags)),
		e.Weather, e.Location, pq.Array(nonNil(e.Activities)), e.Goals, time.Now().UTC())
	if err := expectRow(result, err); err != nil {
		return journal.Entry{}, err
	}
	return s.GetEntry(ctx, e.ID)
}

func (s *Store) GetEntry(ctx context.Context, id string) (journal.Entry, error) {
	var row entryRow
	if err := s.db.GetContext(ctx, &row, entrySelect+` WHERE e.id = $1`, id); err != nil {
		return journal.Entry{}, mapErr(err)
	}
	return row.model(), nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = $1`, id)
	return expectRow(result, err)
}

func (s *Store) ListEntries(ctx context.Context, filter journal.Filter) ([]journal.Entry, error) {
	var c clauses
	if filter.UserID != "" {
		c.add("e.user_id = ?", filter.UserID)
	}
	if !journal.AnyMood(filter.Mood) {
		c.add("LOWER(e.mood) = LOWER(?)", filter.Mood)
	}
	if filter.Date != "" {
		day, err := time.Parse(journal.DayLayout, filter.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", filter.Date, err)
		}
		c.between("e.created_at", day, day.AddDate(0, 0, 1))
	}
	c.between("e.created_at", filter.From, filter.To)
	if filter.Tag != "" {
		c.add("EXISTS (SELECT 1 FROM unnest(e.tags) t WHERE LOWER(t) = LOWER(?))", filter.Tag)
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		c.add("(e.content ILIKE ? OR e.title ILIKE ? OR EXISTS (SELECT 1 FROM unnest(e.tags) t WHERE t ILIKE ?))", likePattern(q))
	}

	limit, offset := filter.Page()
	query := entrySelect + c.where() + ` ORDER BY e.created_at DESC, e.id DESC LIMIT ` + c.next()
	c.args = append(c.args, limit)
	query += ` OFFSET ` + c.next()
	c.args = append(c.args, offset)

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, c.args...); err != nil {
		return nil, err
	}
	out := make([]journal.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) CountEntries(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var c clauses
	c.add("user_id = ?", userID)
	c.between("created_at", from, to)
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM journal_entries`+c.where(), c.args...)
	return n, err
}

func (s *Store) MoodCounts(ctx context.Context, userID string, from, to time.Time) ([]journal.MoodCount, error) {
	var c clauses
	c.add("user_id = ?", userID)
	c.between("created_at", from, to)
	out := []journal.MoodCount{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT mood, COUNT(*) AS count FROM journal_entries`+c.where()+`
		GROUP BY mood ORDER BY mood`, c.args...)
	return out, err
}

type dayCount struct {
	Day   string `db:"day"`
	Count int    `db:"count"`
}

func (s *Store) dailyCounts(ctx context.Context, table, column, userID string, from, to time.Time) (map[string]int, error) {
	var c clauses
	c.add("user_id = ?", userID)
	c.between(column, from, to)
	var rows []dayCount
	err := s.db.SelectContext(ctx, &rows, `
		SELECT to_char(`+column+` AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM `+table+c.where()+`
		GROUP BY day`, c.args...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Day] = r.Count
	}
	return out, nil
}

func (s *Store) DailyEntryCounts(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	return s.dailyCounts(ctx, "journal_entries", "created_at", userID, from, to)
}

func (s *Store) AverageEnergy(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	var c clauses
	c.add("user_id = ?", userID)
	c.between("created_at", from, to)
	var avg float64
	err := s.db.GetContext(ctx, &avg, `SELECT COALESCE(AVG(energy_level), 0)::float8 FROM journal_entries`+c.where(), c.args...)
	return avg, err
}

func (s *Store) ListActiveUserIDs(ctx context.Context, from, to time.Time) ([]string, error) {
	var c clauses
	c.between("created_at", from, to)
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT user_id FROM journal_entries`+c.where()+` ORDER BY user_id`, c.args...)
	return ids, err
}

// --- ReminderStore ----------------------------------------------------------

type reminderRow struct {
	ID           string       `db:"id"`
	UserID       string       `db:"user_id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	ReminderType string       `db:"reminder_type"`
	Via          string       `db:"via"`
	Repeat       string       `db:"repeat"`
	Priority     string       `db:"priority"`
	Active       bool         `db:"is_active"`
	SentAt       time.Time    `db:"sent_at"`
	DeliveredAt  sql.NullTime `db:"delivered_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r reminderRow) model() reminder.Reminder {
	out := reminder.Reminder{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Description:  r.Description,
		ReminderType: r.ReminderType,
		Via:          reminder.Channel(r.Via),
		Repeat:       reminder.Repeat(r.Repeat),
		Priority:     reminder.Priority(r.Priority),
		Active:       r.Active,
		SentAt:       r.SentAt.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time.UTC()
		out.DeliveredAt = &t
	}
	return out
}

const reminderColumns = `id, user_id, title, description, reminder_type, via, repeat, priority, is_active, sent_at, delivered_at, created_at, updated_at`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (s *Store) CreateReminder(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	r.ID = newID(r.ID)
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.SentAt = r.SentAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.ID, r.UserID, r.Title, r.Description, r.ReminderType, string(r.Via), string(r.Repeat),
		string(r.Priority), r.Active, r.SentAt, nullTime(r.DeliveredAt), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return reminder.Reminder{}, mapErr(err)
	}
	return r, nil
}

func (s *Store) UpdateReminder(ctx context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	existing, err := s.GetReminder(ctx, r.ID)
	if err != nil {
		return reminder.Reminder{}, err
	}
	r.UserID = existing.UserID
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.SentAt = r.SentAt.UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET title = $2, description = $3, reminder_type = $4, via = $5, repeat = $6, priority = $7,
		    is_active = $8, sent_at = $9, delivered_at = $10, updated_at = $11
		WHERE id = $1
	`, r.ID, r.Title, r.Description, r.ReminderType, string(r.Via), string(r.Repeat), string(r.Priority),
		r.Active, r.SentAt, nullTime(r.DeliveredAt), r.UpdatedAt)
	if err := expectRow(result, err); err != nil {
		return reminder.Reminder{}, err
	}
	return r, nil
}

func (s *Store) GetReminder(ctx context.Context, id string) (reminder.Reminder, error) {
	var row reminderRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id); err != nil {
		return reminder.Reminder{}, mapErr(err)
	}
	return row.model(), nil
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	return expectRow(result, err)
}

func (s *Store) selectReminders(ctx context.Context, query string, args ...any) ([]reminder.Reminder, error) {
	var rows []reminderRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]reminder.Reminder, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) ListReminders(ctx context.Context, filter reminder.Filter) ([]reminder.Reminder, error) {
	var c clauses
	if filter.UserID != "" {
		c.add("user_id = ?", filter.UserID)
	}
	if filter.ActiveOnly {
		c.add("is_active = ?", true)
	}
	return s.selectReminders(ctx, `SELECT `+reminderColumns+` FROM reminders`+c.where()+` ORDER BY sent_at DESC, id DESC`, c.args...)
}

// defaultDueBatch caps ListDueReminders when no limit is given.
const defaultDueBatch = 100

func (s *Store) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]reminder.Reminder, error) {
	if limit <= 0 {
		limit = defaultDueBatch
	}
	return s.selectReminders(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE is_active AND delivered_at IS NULL AND sent_at <= $1
		ORDER BY sent_at ASC
		LIMIT $2`, now.UTC(), limit)
}

func (s *Store) CountReminders(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var c clauses
	c.add("user_id = ?", userID)
	c.between("sent_at", from, to)
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reminders`+c.where(), c.args...)
	return n, err
}

func (s *Store) DailyReminderCounts(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	return s.dailyCounts(ctx, "reminders", "sent_at", userID, from, to)
}

// --- SummaryStore -----------------------------------------------------------

type summaryRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	WeekStart   time.Time      `db:"week_start"`
	WeekEnd     time.Time      `db:"week_end"`
	Summary     string         `db:"summary"`
	AIModel     string         `db:"ai_model"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	AuthorName  sql.NullString `db:"author_name"`
	AuthorEmail sql.NullString `db:"author_email"`
}

func (r summaryRow) model() summary.Summary {
	out := summary.Summary{
		ID:        r.ID,
		UserID:    r.UserID,
		WeekStart: r.WeekStart.UTC(),
		WeekEnd:   r.WeekEnd.UTC(),
		Summary:   r.Summary,
		AIModel:   r.AIModel,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.AuthorEmail.Valid {
		out.User = &user.Author{ID: r.UserID, Name: r.AuthorName.String, Email: r.AuthorEmail.String}
	}
	return out
}

const summarySelect = `
	SELECT s.id, s.user_id, s.week_start, s.week_end, s.summary, s.ai_model, s.created_at, s.updated_at,
	       u.name AS author_name, u.email AS author_email
	FROM summaries s
	LEFT JOIN users u ON u.id = s.user_id`

func (s *Store) CreateSummary(ctx context.Context, sm summary.Summary) (summary.Summary, error) {
	sm.ID = newID(sm.ID)
	now := time.Now().UTC()
	if sm.CreatedAt.IsZero() {
		sm.CreatedAt = now
	}
	sm.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (id, user_id, week_start, week_end, summary, ai_model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sm.ID, sm.UserID, sm.WeekStart.UTC(), sm.WeekEnd.UTC(), sm.Summary, sm.AIModel, sm.CreatedAt, sm.UpdatedAt)
	if err != nil {
		return summary.Summary{}, mapErr(err)
	}
	return s.GetSummary(ctx, sm.ID)
}

func (s *Store) GetSummary(ctx context.Context, id string) (summary.Summary, error) {
	var row summaryRow
	if err := s.db.GetContext(ctx, &row, summarySelect+` WHERE s.id = $1`, id); err != nil {
		return summary.Summary{}, mapErr(err)
	}
	return row.model(), nil
}

func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM summaries WHERE id = $1`, id)
	return expectRow(result, err)
}

func (s *Store) ListSummaries(ctx context.Context, userID string) ([]summary.Summary, error) {
	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows, summarySelect+` WHERE s.user_id = $1 ORDER BY s.created_at DESC, s.id DESC`, userID); err != nil {
		return nil, err
	}
	out := make([]summary.Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) FindSummaryForWeek(ctx context.Context, userID string, weekStart time.Time) (summary.Summary, error) {
	var row summaryRow
	err := s.db.GetContext(ctx, &row, summarySelect+` WHERE s.user_id = $1 AND s.week_start = $2 LIMIT 1`, userID, weekStart.UTC())
	if err != nil {
		return summary.Summary{}, mapErr(err)
	}
	return row.model(), nil
}

func (s *Store) CountSummaries(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM summaries WHERE user_id = $1`, userID)
	return n, err
}

// --- ExportStore ------------------------------------------------------------

type exportRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Format     string    `db:"format"`
	EntryCount int       `db:"entry_count"`
	CreatedAt  time.Time `db:"created_at"`
}

func (s *Store) CreateExportLog(ctx context.Context, l export.Log) (export.Log, error) {
	l.ID = newID(l.ID)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_logs (id, user_id, format, entry_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID, l.UserID, string(l.Format), l.EntryCount, l.CreatedAt)
	if err != nil {
		return export.Log{}, mapErr(err)
	}
	return l, nil
}

func (s *Store) ListExportLogs(ctx context.Context, userID string) ([]export.Log, error) {
	var rows []exportRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, format, entry_count, created_at
		FROM export_logs WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]export.Log, 0, len(rows))
	for _, r := range rows {
		out = append(out, export.Log{ID: r.ID, UserID: r.UserID, Format: export.Format(r.Format), EntryCount: r.EntryCount, CreatedAt: r.CreatedAt.UTC()})
	}
	return out, nil
}

// --- RecordStore ------------------------------------------------------------

type recordRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Value     string    `db:"value"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) CreateRecord(ctx context.Context, r record.Record) (record.Record, error) {
	r.ID = newID(r.ID)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, name, value, created_at) VALUES ($1, $2, $3, $4)
	`, r.ID, r.Name, r.Value, r.CreatedAt)
	if err != nil {
		return record.Record{}, mapErr(err)
	}
	return r, nil
}

func (s *Store) ListRecords(ctx context.Context) ([]record.Record, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, value, created_at FROM records ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, record.Record{ID: r.ID, Name: r.Name, Value: r.Value, CreatedAt: r.CreatedAt.UTC()})
	}
	return out, nil
}

// --- AuditStore -------------------------------------------------------------

type auditRow struct {
	OccurredAt time.Time `db:"occurred_at"`
	UserID     string    `db:"user_id"`
	Role       string    `db:"role"`
	Method     string    `db:"method"`
	Path       string    `db:"path"`
	Status     int       `db:"status"`
	RemoteAddr string    `db:"remote_addr"`
	UserAgent  string    `db:"user_agent"`
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO http_audit_log (occurred_at, user_id, role, method, path, status, remote_addr, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.Time.UTC(), e.User, e.Role, e.Method, e.Path, e.Status, e.RemoteAddr, e.UserAgent)
	return err
}

// ListAudit returns the most recent entries in chronological order.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT occurred_at, user_id, role, method, path, status, remote_addr, user_agent
		FROM http_audit_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]audit.Entry, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = audit.Entry{
			Time:       r.OccurredAt.UTC(),
			User:       r.UserID,
			Role:       r.Role,
			Method:     r.Method,
			Path:       r.Path,
			Status:     r.Status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent,
		}
	}
	return out, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
