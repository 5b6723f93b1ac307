package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/moodtrail/tracker/internal/app/auth"
	"github.com/moodtrail/tracker/internal/app/domain/journal"
	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage"
	"github.com/moodtrail/tracker/internal/app/validation"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

// RecentEntryCount is how many journal entries a profile carries.
const RecentEntryCount = 5

// Profile is a user with resource counts and their latest journal entries.
type Profile struct {
	user.User
	Count          user.Stats      `json:"_count"`
	JournalEntries []journal.Entry `json:"journalEntries"`
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// UpdateInput holds optional profile changes. Empty strings mean "unchanged".
type UpdateInput struct {
	Name            string `json:"name" validate:"omitempty,max=120"`
	Email           string `json:"email" validate:"omitempty,email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"omitempty,min=6"`
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

// Invalidator drops cached read models of a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service manages accounts and credentials.
type Service struct {
	store       storage.UserStore
	journal     storage.JournalStore
	cost        int
	revoker     SessionRevoker
	invalidator Invalidator
	log         *logger.Logger
	now         func() time.Time
}

// New constructs a user service hashing passwords at bcrypt cost.
func New(store storage.UserStore, journalStore storage.JournalStore, cost int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{
		store:   store,
		journal: journalStore,
		cost:    cost,
		log:     log,
		now:     time.Now,
	}
}

// WithRevoker ends sessions when an account is deleted.
func (s *Service) WithRevoker(r SessionRevoker) { s.revoker = r }

// WithInvalidator drops cached dashboards when an account is deleted.
func (s *Service) WithInvalidator(i Invalidator) { s.invalidator = i }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("User not found")
	}
	return err
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return user.User{}, apperrors.InvalidInput("Name, email, and password are required")
	}
	if err := validation.Struct(in); err != nil {
		return user.User{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return user.User{}, apperrors.AlreadyExists("User already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return user.User{}, err
	}

	created, err := s.store.CreateUser(ctx, user.User{Name: in.Name, Email: in.Email, PasswordHash: hash})
	if errors.Is(err, storage.ErrDuplicate) {
		return user.User{}, apperrors.AlreadyExists("User already exists")
	}
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", created.ID).Info("user registered")
	return created, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := auth.HashPassword(password, s.cost)
	if auth.IsPasswordTooLong(err) {
		return "", apperrors.InvalidInput("password must be at most 72 bytes")
	}
	if err != nil {
		return "", apperrors.Internal("", err)
	}
	return hash, nil
}

// Authenticate checks credentials and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return user.User{}, apperrors.InvalidInput("Email and password are required")
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, apperrors.Unauthorized("Invalid email or password")
		}
		return user.User{}, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		s.log.WithField("user_id", u.ID).Warn("failed login attempt")
		return user.User{}, apperrors.Unauthorized("Invalid email or password")
	}

	now := s.now().UTC()
	if err := s.store.TouchLogin(ctx, u.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("record last login")
	} else {
		u.LastLoginAt = &now
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, strings.TrimSpace(id))
	return u, notFound(err)
}

// Profile returns the user with counts and recent journal entries.
func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	stats, err := s.store.UserStats(ctx, u.ID)
	if err != nil {
		return Profile{}, notFound(err)
	}
	recent := []journal.Entry{}
	if s.journal != nil {
		recent, err = s.journal.ListEntries(ctx, journal.Filter{UserID: u.ID, Limit: RecentEntryCount})
		if err != nil {
			return Profile{}, err
		}
	}
	return Profile{User: u, Count: stats, JournalEntries: recent}, nil
}

// List returns every user with resource counts.
func (s *Service) List(ctx context.Context) ([]user.Listing, error) {
	return s.store.ListUsers(ctx)
}

// Update applies the non-empty fields of in.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (user.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return user.User{}, err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if in.Name != "" {
		u.Name = in.Name
	}
	if in.Email != "" && in.Email != u.Email {
		if existing, err := s.store.GetUserByEmail(ctx, in.Email); err == nil && existing.ID != u.ID {
			return user.User{}, apperrors.AlreadyExists("Email already in use")
		}
		u.Email = in.Email
	}
	if in.NewPassword != "" {
		if in.CurrentPassword == "" {
			return user.User{}, apperrors.InvalidInput("Current password is required")
		}
		if !auth.CheckPassword(u.PasswordHash, in.CurrentPassword) {
			return user.User{}, apperrors.InvalidInput("Current password is incorrect")
		}
		hash, err := s.hash(in.NewPassword)
		if err != nil {
			return user.User{}, err
		}
		u.PasswordHash = hash
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if errors.Is(err, storage.ErrDuplicate) {
		return user.User{}, apperrors.AlreadyExists("Email already in use")
	}
	if err != nil {
		return user.User{}, notFound(err)
	}
	s.log.WithField("user_id", updated.ID).Info("user updated")
	return updated, nil
}

// Delete removes the user together with everything they own.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return notFound(err)
	}
	if s.revoker != nil {
		if err := s.revoker.RevokeAll(ctx, id); err != nil {
			s.log.WithError(err).WithField("user_id", id).Warn("revoke sessions after delete")
		}
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, id)
	}
	s.log.WithField("user_id", id).Info("user deleted")
	return nil
}
