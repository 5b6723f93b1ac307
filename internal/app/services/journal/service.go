package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/metrics"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/internal/app/validation"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Invalidator drops cached read models of a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service manages journal entries.
type Service struct {
	store       storage.JournalStore
	users       storage.UserStore
	invalidator Invalidator
	log         *logger.Logger
}

// New constructs a journal service.
func New(users storage.UserStore, store storage.JournalStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("journal")
	}
	return &Service{store: store, users: users, log: log}
}

// WithInvalidator registers a cache to clear after writes.
func (s *Service) WithInvalidator(i Invalidator) { s.invalidator = i }

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, userID)
	}
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("Journal entry not found")
	}
	return err
}

func checkEnergy(level int) error {
	if level < journal.MinEnergyLevel || level > journal.MaxEnergyLevel {
		return apperrors.InvalidInput(fmt.Sprintf("energyLevel must be between %d and %d", journal.MinEnergyLevel, journal.MaxEnergyLevel))
	}
	return nil
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// Create stores a new entry for userID.
func (s *Service) Create(ctx context.Context, userID string, in Input) (journal.Entry, error) {
	userID = strings.TrimSpace(userID)
	content := trimmed(in.Content)
	mood := strings.ToLower(trimmed(in.Mood))
	if content == "" || mood == "" {
		return journal.Entry{}, apperrors.InvalidInput("Content and mood are required")
	}
	if userID == "" {
		return journal.Entry{}, apperrors.InvalidInput("userId is required")
	}

	energy := journal.DefaultEnergyLevel
	if in.EnergyLevel != nil {
		energy = *in.EnergyLevel
	}
	if err := checkEnergy(energy); err != nil {
		return journal.Entry{}, err
	}

	if s.users != nil {
		if _, err := s.users.GetUser(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return journal.Entry{}, apperrors.NotFound("User not found")
			}
			return journal.Entry{}, err
		}
	}

	entry := journal.Entry{
		UserID:      userID,
		Title:       trimmed(in.Title),
		Content:     content,
		Mood:        mood,
		EnergyLevel: energy,
		Tags:        nonNil(in.Tags),
		Weather:     trimmed(in.Weather),
		Location:    trimmed(in.Location),
		Activities:  nonNil(in.Activities),
		Goals:       trimmed(in.Goals),
	}
	created, err := s.store.CreateEntry(ctx, entry)
	if err != nil {
		return journal.Entry{}, notFound(err)
	}
	s.invalidate(ctx, userID)
	metrics.RecordJournalWrite("create")
	s.log.WithField("entry_id", created.ID).
		WithField("user_id", userID).
		WithField("mood", created.Mood).
		Info("journal entry created")
	return created, nil
}

// Get returns an entry by id.
func (s *Service) Get(ctx context.Context, id string) (journal.Entry, error) {
	e, err := s.store.GetEntry(ctx, strings.TrimSpace(id))
	return e, notFound(err)
}

// List returns entries matching filter, newest first.
func (s *Service) List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Mood = strings.TrimSpace(filter.Mood)
	filter.Tag = strings.TrimSpace(filter.Tag)
	filter.Date = strings.TrimSpace(filter.Date)
	if filter.Date != "" {
		if err := validation.Var("date", filter.Date, "datetime="+journal.DayLayout); err != nil {
			return nil, err
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, apperrors.InvalidInput("from must be before to")
	}
	return s.store.ListEntries(ctx, filter)
}

// Update applies the present, non-empty fields of in to entry id.
func (s *Service) Update(ctx context.Context, id string, in Input) (journal.Entry, error) {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return journal.Entry{}, err
	}

	set := func(dst *string, src *string) {
		if v := trimmed(src); v != "" {
			*dst = v
		}
	}
	set(&entry.Title, in.Title)
	set(&entry.Content, in.Content)
	if v := trimmed(in.Mood); v != "" {
		entry.Mood = strings.ToLower(v)
	}
	set(&entry.Weather, in.Weather)
	set(&entry.Location, in.Location)
	set(&entry.Goals, in.Goals)
	if in.EnergyLevel != nil {
		if err := checkEnergy(*in.EnergyLevel); err != nil {
			return journal.Entry{}, err
		}
		entry.EnergyLevel = *in.EnergyLevel
	}
	if in.HasTags {
		entry.Tags = nonNil(in.Tags)
	}
	if in.HasActivity {
		entry.Activities = nonNil(in.Activities)
	}

	updated, err := s.store.UpdateEntry(ctx, entry)
	if err != nil {
		return journal.Entry{}, notFound(err)
	}
	s.invalidate(ctx, updated.UserID)
	metrics.RecordJournalWrite("update")
	s.log.WithField("entry_id", updated.ID).Info("journal entry updated")
	return updated, nil
}

// Delete removes entry id.
func (s *Service) Delete(ctx context.Context, id string) error {
	entry, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEntry(ctx, entry.ID); err != nil {
		return notFound(err)
	}
	s.invalidate(ctx, entry.UserID)
	metrics.RecordJournalWrite("delete")
	s.log.WithField("entry_id", entry.ID).Info("journal entry deleted")
	return nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
