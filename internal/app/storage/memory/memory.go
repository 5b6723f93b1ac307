package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

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

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu        sync.RWMutex
	nextID    int64
	seq       map[string]int64
	users     map[string]user.User
	byEmail   map[string]string
	sessions  map[string]session.Session
	entries   map[string]journal.Entry
	reminders map[string]reminder.Reminder
	summaries map[string]summary.Summary
	exports   map[string]export.Log
	records   []record.Record
	audit     []audit.Entry
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.JournalStore = (*Store)(nil)
var _ storage.ReminderStore = (*Store)(nil)
var _ storage.SummaryStore = (*Store)(nil)
var _ storage.ExportStore = (*Store)(nil)
var _ storage.RecordStore = (*Store)(nil)
var _ storage.AuditStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:    1,
		seq:       make(map[string]int64),
		users:     make(map[string]user.User),
		byEmail:   make(map[string]string),
		sessions:  make(map[string]session.Session),
		entries:   make(map[string]journal.Entry),
		reminders: make(map[string]reminder.Reminder),
		summaries: make(map[string]summary.Summary),
		exports:   make(map[string]export.Log),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// assignLocked fills in an id and records insertion order, which breaks
// timestamp ties in listings.
func (s *Store) assignLocked(id string) string {
	if id == "" {
		id = s.nextIDLocked()
	}
	s.seq[id] = s.nextID
	s.nextID++
	return id
}

func stamp(created time.Time) (time.Time, time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		created = now
	}
	return created.UTC(), now
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, taken := s.byEmail[key]; taken {
		return user.User{}, storage.ErrDuplicate
	}
	if _, exists := s.users[u.ID]; exists && u.ID != "" {
		return user.User{}, storage.ErrDuplicate
	}

	u.ID = s.assignLocked(u.ID)
	u.CreatedAt, u.UpdatedAt = stamp(u.CreatedAt)
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	newKey := strings.ToLower(u.Email)
	if owner, taken := s.byEmail[newKey]; taken && owner != u.ID {
		return user.User{}, storage.ErrDuplicate
	}

	delete(s.byEmail, strings.ToLower(original.Email))
	s.byEmail[newKey] = u.ID
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.Listing, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, user.Listing{User: u, Count: s.statsLocked(u.ID)})
	}
	sort.Slice(result, func(i, j int) bool {
		return s.seq[result[i].ID] < s.seq[result[j].ID]
	})
	return result, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, strings.ToLower(u.Email))
	for k, e := range s.entries {
		if e.UserID == id {
			delete(s.entries, k)
		}
	}
	for k, r := range s.reminders {
		if r.UserID == id {
			delete(s.reminders, k)
		}
	}
	for k, sm := range s.summaries {
		if sm.UserID == id {
			delete(s.summaries, k)
		}
	}
	for k, l := range s.exports {
		if l.UserID == id {
			delete(s.exports, k)
		}
	}
	for k, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, k)
		}
	}
	return nil
}

func (s *Store) UserStats(_ context.Context, id string) (user.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[id]; !ok {
		return user.Stats{}, storage.ErrNotFound
	}
	return s.statsLocked(id), nil
}

func (s *Store) statsLocked(id string) user.Stats {
	var st user.Stats
	for _, e := range s.entries {
		if e.UserID == id {
			st.JournalEntries++
		}
	}
	for _, r := range s.reminders {
		if r.UserID == id {
			st.Reminders++
		}
	}
	for _, sm := range s.summaries {
		if sm.UserID == id {
			st.Summaries++
		}
	}
	for _, l := range s.exports {
		if l.UserID == id {
			st.Exports++
		}
	}
	return st
}

func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	at = at.UTC()
	u.LastLoginAt = &at
	s.users[id] = u
	return nil
}

// SessionStore implementation -------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess session.Session) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.TokenHash]; exists {
		return session.Session{}, storage.ErrDuplicate
	}
	sess.ID = s.assignLocked(sess.ID)
	sess.CreatedAt, _ = stamp(sess.CreatedAt)
	s.sessions[sess.TokenHash] = sess
	return sess, nil
}

func (s *Store) GetSessionByTokenHash(_ context.Context, tokenHash string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return session.Session{}, storage.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tokenHash]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, k)
		}
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, k)
			removed++
		}
	}
	return removed, nil
}

// JournalStore implementation -------------------------------------------------

func (s *Store) CreateEntry(_ context.Context, e journal.Entry) (journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.UserID == "" {
		return journal.Entry{}, fmt.Errorf("user_id required")
	}
	if _, ok := s.users[e.UserID]; !ok {
		return journal.Entry{}, storage.ErrNotFound
	}
	if _, exists := s.entries[e.ID]; exists && e.ID != "" {
		return journal.Entry{}, storage.ErrDuplicate
	}

	e.ID = s.assignLocked(e.ID)
	e.CreatedAt, e.UpdatedAt = stamp(e.CreatedAt)
	e = cloneEntry(e)
	e.User = nil
	s.entries[e.ID] = e
	return s.withAuthorLocked(e), nil
}

func (s *Store) UpdateEntry(_ context.Context, e journal.Entry) (journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.entries[e.ID]
	if !ok {
		return journal.Entry{}, storage.ErrNotFound
	}
	e.UserID = original.UserID
	e.CreatedAt = original.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	e = cloneEntry(e)
	e.User = nil
	s.entries[e.ID] = e
	return s.withAuthorLocked(e), nil
}

func (s *Store) GetEntry(_ context.Context, id string) (journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return journal.Entry{}, storage.ErrNotFound
	}
	return s.withAuthorLocked(e), nil
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) ListEntries(_ context.Context, filter journal.Filter) ([]journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []journal.Entry
	for _, e := range s.entries {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return s.seq[matched[i].ID] > s.seq[matched[j].ID]
	})

	limit, offset := filter.Page()
	if offset >= len(matched) {
		return []journal.Entry{}, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]journal.Entry, 0, len(matched))
	for _, e := range matched {
		result = append(result, s.withAuthorLocked(e))
	}
	return result, nil
}

func (s *Store) CountEntries(_ context.Context, userID string, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if e.UserID == userID && inRange(e.CreatedAt, from, to) {
			count++
		}
	}
	return count, nil
}

func (s *Store) MoodCounts(_ context.Context, userID string, from, to time.Time) ([]journal.MoodCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.entries {
		if e.UserID == userID && inRange(e.CreatedAt, from, to) {
			counts[e.Mood]++
		}
	}
	result := make([]journal.MoodCount, 0, len(counts))
	for mood, n := range counts {
		result = append(result, journal.MoodCount{Mood: mood, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Mood < result[j].Mood })
	return result, nil
}

func (s *Store) DailyEntryCounts(_ context.Context, userID string, from, to time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, e := range s.entries {
		if e.UserID == userID && inRange(e.CreatedAt, from, to) {
			out[journal.DayKey(e.CreatedAt)]++
		}
	}
	return out, nil
}

func (s *Store) AverageEnergy(_ context.Context, userID string, from, to time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, n := 0, 0
	for _, e := range s.entries {
		if e.UserID == userID && inRange(e.CreatedAt, from, to) {
			total += e.EnergyLevel
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(total) / float64(n), nil
}

func (s *Store) ListActiveUserIDs(_ context.Context, from, to time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.entries {
		if inRange(e.CreatedAt, from, to) {
			seen[e.UserID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) withAuthorLocked(e journal.Entry) journal.Entry {
	e = cloneEntry(e)
	if u, ok := s.users[e.UserID]; ok {
		e.User = user.AuthorOf(u)
	}
	return e
}

// ReminderStore implementation ------------------------------------------------

func (s *Store) CreateReminder(_ context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[r.UserID]; !ok {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	r.ID = s.assignLocked(r.ID)
	r.CreatedAt, r.UpdatedAt = stamp(r.CreatedAt)
	r.SentAt = r.SentAt.UTC()
	s.reminders[r.ID] = r
	return r, nil
}

func (s *Store) UpdateReminder(_ context.Context, r reminder.Reminder) (reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.reminders[r.ID]
	if !ok {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	r.UserID = original.UserID
	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.SentAt = r.SentAt.UTC()
	s.reminders[r.ID] = r
	return r, nil
}

func (s *Store) GetReminder(_ context.Context, id string) (reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reminders[id]
	if !ok {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) DeleteReminder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reminders[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

func (s *Store) ListReminders(_ context.Context, filter reminder.Filter) ([]reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []reminder.Reminder{}
	for _, r := range s.reminders {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.ActiveOnly && !r.Active {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SentAt.Equal(result[j].SentAt) {
			return result[i].SentAt.After(result[j].SentAt)
		}
		return s.seq[result[i].ID] > s.seq[result[j].ID]
	})
	return result, nil
}

func (s *Store) ListDueReminders(_ context.Context, now time.Time, limit int) ([]reminder.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []reminder.Reminder
	for _, r := range s.reminders {
		if r.Active && r.DeliveredAt == nil && !r.SentAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].SentAt.Before(due[j].SentAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) CountReminders(_ context.Context, userID string, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.reminders {
		if r.UserID == userID && inRange(r.SentAt, from, to) {
			count++
		}
	}
	return count, nil
}

func (s *Store) DailyReminderCounts(_ context.Context, userID string, from, to time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, r := range s.reminders {
		if r.UserID == userID && inRange(r.SentAt, from, to) {
			out[journal.DayKey(r.SentAt)]++
		}
	}
	return out, nil
}

// SummaryStore implementation -------------------------------------------------

func (s *Store) CreateSummary(_ context.Context, sm summary.Summary) (summary.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[sm.UserID]
	if !ok {
		return summary.Summary{}, storage.ErrNotFound
	}
	sm.ID = s.assignLocked(sm.ID)
	sm.CreatedAt, sm.UpdatedAt = stamp(sm.CreatedAt)
	sm.WeekStart = sm.WeekStart.UTC()
	sm.WeekEnd = sm.WeekEnd.UTC()
	sm.User = nil
	s.summaries[sm.ID] = sm
	sm.User = user.AuthorOf(u)
	return sm, nil
}

func (s *Store) GetSummary(_ context.Context, id string) (summary.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sm, ok := s.summaries[id]
	if !ok {
		return summary.Summary{}, storage.ErrNotFound
	}
	return s.summaryWithAuthorLocked(sm), nil
}

func (s *Store) DeleteSummary(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.summaries[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.summaries, id)
	return nil
}

func (s *Store) ListSummaries(_ context.Context, userID string) ([]summary.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []summary.Summary{}
	for _, sm := range s.summaries {
		if sm.UserID == userID {
			result = append(result, s.summaryWithAuthorLocked(sm))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return s.seq[result[i].ID] > s.seq[result[j].ID]
	})
	return result, nil
}

func (s *Store) FindSummaryForWeek(_ context.Context, userID string, weekStart time.Time) (summary.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sm := range s.summaries {
		if sm.UserID == userID && sm.WeekStart.Equal(weekStart) {
			return s.summaryWithAuthorLocked(sm), nil
		}
	}
	return summary.Summary{}, storage.ErrNotFound
}

func (s *Store) CountSummaries(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sm := range s.summaries {
		if sm.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *Store) summaryWithAuthorLocked(sm summary.Summary) summary.Summary {
	if u, ok := s.users[sm.UserID]; ok {
		sm.User = user.AuthorOf(u)
	}
	return sm
}

// ExportStore implementation --------------------------------------------------

func (s *Store) CreateExportLog(_ context.Context, l export.Log) (export.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = s.assignLocked(l.ID)
	l.CreatedAt, _ = stamp(l.CreatedAt)
	s.exports[l.ID] = l
	return l, nil
}

func (s *Store) ListExportLogs(_ context.Context, userID string) ([]export.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []export.Log{}
	for _, l := range s.exports {
		if l.UserID == userID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return s.seq[result[i].ID] > s.seq[result[j].ID] })
	return result, nil
}

// RecordStore implementation --------------------------------------------------

func (s *Store) CreateRecord(_ context.Context, r record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.assignLocked(r.ID)
	r.CreatedAt, _ = stamp(r.CreatedAt)
	s.records = append(s.records, r)
	return r, nil
}

func (s *Store) ListRecords(_ context.Context) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// AuditStore implementation ---------------------------------------------------

func (s *Store) AppendAudit(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.audit
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]audit.Entry, len(all))
	copy(out, all)
	return out, nil
}

func cloneEntry(e journal.Entry) journal.Entry {
	e.Tags = cloneStrings(e.Tags)
	e.Activities = cloneStrings(e.Activities)
	return e
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
