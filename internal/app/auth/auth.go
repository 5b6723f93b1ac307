// Package auth issues and verifies HS256 access tokens. Every token is backed
// by a session row keyed by the SHA-256 of the token, so logout and account
// deletion revoke tokens before they expire.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/moodtrail/tracker/internal/app/domain/session"
	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	issuer = "activity-tracker"
)

// Claims is the JWT payload.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID string
	Email  string
	Role   string
	// Token is the raw bearer token, kept so logout can revoke it.
	Token string
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanAccess reports whether the caller may act on resources owned by ownerID.
func (i Identity) CanAccess(ownerID string) bool {
	return i.UserID == ownerID || i.IsAdmin()
}

// Manager issues, verifies and revokes tokens.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	sessions storage.SessionStore
	admins   map[string]struct{}
	log      *logger.Logger
	now      func() time.Time
}

// NewManager builds a Manager. An empty secret is replaced by a random one,
// which invalidates tokens on restart; that is only acceptable for the
// in-memory development mode.
func NewManager(secret string, ttl time.Duration, sessions storage.SessionStore, admins map[string]struct{}, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	key := []byte(secret)
	if strings.TrimSpace(secret) == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		log.Warn("JWT secret not configured; using an ephemeral key")
	}
	if admins == nil {
		admins = map[string]struct{}{}
	}
	return &Manager{
		secret:   key,
		ttl:      ttl,
		sessions: sessions,
		admins:   admins,
		log:      log,
		now:      time.Now,
	}, nil
}

// TTL returns the token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// RoleFor resolves the role granted to email.
func (m *Manager) RoleFor(email string) string {
	if _, ok := m.admins[strings.ToLower(strings.TrimSpace(email))]; ok {
		return RoleAdmin
	}
	return RoleUser
}

// Issue signs a token for u and records its session.
func (m *Manager) Issue(ctx context.Context, u user.User) (string, time.Time, error) {
	now := m.now().UTC()
	expires := now.Add(m.ttl)
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   m.RoleFor(u.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	if _, err := m.sessions.CreateSession(ctx, session.Session{
		UserID:    u.ID,
		TokenHash: HashToken(token),
		ExpiresAt: expires,
		CreatedAt: now,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}

	m.log.WithField("user_id", u.ID).Debug("access token issued")
	return token, expires, nil
}

// Verify checks the signature, expiry and backing session of token. A token
// that fails cryptographic checks yields INVALID_TOKEN (403); a valid token
// whose session is gone yields UNAUTHORIZED (401).
func (m *Manager) Verify(ctx context.Context, token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Identity{}, apperrors.InvalidToken(err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return Identity{}, apperrors.InvalidToken(nil)
	}

	sess, err := m.sessions.GetSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, apperrors.Unauthorized("Session expired")
		}
		return Identity{}, apperrors.Internal("", err)
	}
	if sess.Expired(m.now()) || sess.UserID != claims.UserID {
		return Identity{}, apperrors.Unauthorized("Session expired")
	}

	return Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   m.RoleFor(claims.Email),
		Token:  token,
	}, nil
}

// Revoke deletes the session behind token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := m.sessions.DeleteSession(ctx, HashToken(token))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// RevokeAll deletes every session of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.sessions.DeleteUserSessions(ctx, userID)
}

// HashToken returns the hex SHA-256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
