package reminders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/internal/app/validation"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

// CreateInput is the payload for a new reminder. SentAt is RFC3339.
type CreateInput struct {
	Title        string `json:"title" validate:"max=200"`
	Description  string `json:"description"`
	ReminderType string `json:"reminderType"`
	Via          string `json:"via" validate:"oneof=email push sms in_app"`
	Repeat       string `json:"repeat" validate:"omitempty,oneof=none daily weekly monthly"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low medium high"`
	SentAt       string `json:"sentAt"`
	IsActive     *bool  `json:"isActive"`
}

// UpdateInput carries optional changes; nil fields are left alone.
type UpdateInput struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ReminderType *string `json:"reminderType"`
	Via          *string `json:"via" validate:"omitempty,oneof=email push sms in_app"`
	Repeat       *string `json:"repeat" validate:"omitempty,oneof=none daily weekly monthly"`
	Priority     *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	SentAt       *string `json:"sentAt"`
	IsActive     *bool   `json:"isActive"`
}

// Invalidator drops cached read models of a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service manages reminders.
type Service struct {
	users       storage.UserStore
	store       storage.ReminderStore
	invalidator Invalidator
	log         *logger.Logger
}

// New constructs a reminder service.
func New(users storage.UserStore, store storage.ReminderStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reminders")
	}
	return &Service{users: users, store: store, log: log}
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
		return apperrors.NotFound("Reminder not found")
	}
	return err
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, apperrors.InvalidInput(field + " must be an RFC3339 timestamp")
	}
	return t.UTC(), nil
}

// Create stores a reminder for userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (reminder.Reminder, error) {
	userID = strings.TrimSpace(userID)
	in.ReminderType = strings.TrimSpace(in.ReminderType)
	in.Via = strings.ToLower(strings.TrimSpace(in.Via))
	in.Repeat = strings.ToLower(strings.TrimSpace(in.Repeat))
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	in.Title = strings.TrimSpace(in.Title)

	if userID == "" || in.ReminderType == "" || strings.TrimSpace(in.SentAt) == "" || in.Via == "" {
		return reminder.Reminder{}, apperrors.InvalidInput("User ID, reminder type, sent at, and via are required")
	}
	if err := validation.Struct(in); err != nil {
		return reminder.Reminder{}, err
	}
	sentAt, err := parseTime("sentAt", in.SentAt)
	if err != nil {
		return reminder.Reminder{}, err
	}

	if s.users != nil {
		if _, err := s.users.GetUser(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return reminder.Reminder{}, apperrors.NotFound("User not found")
			}
			return reminder.Reminder{}, err
		}
	}

	r := reminder.Reminder{
		UserID:       userID,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		ReminderType: in.ReminderType,
		Via:          reminder.Channel(in.Via),
		Repeat:       reminder.Repeat(in.Repeat),
		Priority:     reminder.Priority(in.Priority),
		Active:       true,
		SentAt:       sentAt,
	}
	if r.Title == "" {
		r.Title = r.ReminderType
	}
	if r.Repeat == "" {
		r.Repeat = reminder.RepeatNone
	}
	if r.Priority == "" {
		r.Priority = reminder.PriorityMedium
	}
	if in.IsActive != nil {
		r.Active = *in.IsActive
	}

	created, err := s.store.CreateReminder(ctx, r)
	if err != nil {
		return reminder.Reminder{}, notFound(err)
	}
	s.invalidate(ctx, userID)
	s.log.WithField("reminder_id", created.ID).
		WithField("user_id", userID).
		WithField("via", created.Via).
		Info("reminder created")
	return created, nil
}

// List returns a user's reminders ordered by sentAt, newest first.
func (s *Service) List(ctx context.Context, userID string, activeOnly bool) ([]reminder.Reminder, error) {
	return s.store.ListReminders(ctx, reminder.Filter{UserID: strings.TrimSpace(userID), ActiveOnly: activeOnly})
}

// Get returns a reminder by id.
func (s *Service) Get(ctx context.Context, id string) (reminder.Reminder, error) {
	r, err := s.store.GetReminder(ctx, strings.TrimSpace(id))
	return r, notFound(err)
}

// Update applies the non-nil fields of in. Moving sentAt reschedules a
// delivered reminder.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (reminder.Reminder, error) {
	lower := func(p *string) {
		if p != nil {
			v := strings.ToLower(strings.TrimSpace(*p))
			*p = v
		}
	}
	lower(in.Via)
	lower(in.Repeat)
	lower(in.Priority)
	if err := validation.Struct(in); err != nil {
		return reminder.Reminder{}, err
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return reminder.Reminder{}, err
	}

	if in.Title != nil {
		if v := strings.TrimSpace(*in.Title); v != "" {
			r.Title = v
		}
	}
	if in.Description != nil {
		r.Description = strings.TrimSpace(*in.Description)
	}
	if in.ReminderType != nil {
		if v := strings.TrimSpace(*in.ReminderType); v != "" {
			r.ReminderType = v
		}
	}
	if in.Via != nil && *in.Via != "" {
		r.Via = reminder.Channel(*in.Via)
	}
	if in.Repeat != nil && *in.Repeat != "" {
		r.Repeat = reminder.Repeat(*in.Repeat)
	}
	if in.Priority != nil && *in.Priority != "" {
		r.Priority = reminder.Priority(*in.Priority)
	}
	if in.SentAt != nil {
		sentAt, err := parseTime("sentAt", *in.SentAt)
		if err != nil {
			return reminder.Reminder{}, err
		}
		if !sentAt.Equal(r.SentAt) {
			r.SentAt = sentAt
			r.DeliveredAt = nil
		}
	}
	if in.IsActive != nil {
		r.Active = *in.IsActive
	}

	updated, err := s.store.UpdateReminder(ctx, r)
	if err != nil {
		return reminder.Reminder{}, notFound(err)
	}
	s.invalidate(ctx, updated.UserID)
	s.log.WithField("reminder_id", updated.ID).Info("reminder updated")
	return updated, nil
}

// Delete removes reminder id.
func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteReminder(ctx, r.ID); err != nil {
		return notFound(err)
	}
	s.invalidate(ctx, r.UserID)
	s.log.WithField("reminder_id", r.ID).Info("reminder deleted")
	return nil
}
