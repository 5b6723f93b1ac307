package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/storage/memory"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	m, err := NewManager("test-secret", time.Hour, store, map[string]struct{}{"root@example.com": {}}, logger.NewDiscard())
	require.NoError(t, err)
	return m, store
}

func TestIssueAndVerify(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, expires, err := m.Issue(ctx, user.User{ID: "u1", Email: "dana@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := m.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, RoleUser, id.Role)
	assert.Equal(t, token, id.Token)
	assert.True(t, id.CanAccess("u1"))
	assert.False(t, id.CanAccess("u2"))
}

func TestTokensAreUniquePerIssue(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	u := user.User{ID: "u1", Email: "dana@example.com"}

	a, _, err := m.Issue(ctx, u)
	require.NoError(t, err)
	b, _, err := m.Issue(ctx, u)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAdminRoleFromAllowlist(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, _, err := m.Issue(ctx, user.User{ID: "root", Email: "Root@Example.com"})
	require.NoError(t, err)
	id, err := m.Verify(ctx, token)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())
	assert.True(t, id.CanAccess("anyone"))
}

func TestVerifyRejectsTamperedAndExpiredTokens(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, _, err := m.Issue(ctx, user.User{ID: "u1", Email: "dana@example.com"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + ".c2lnbmF0dXJl"
	_, err = m.Verify(ctx, forged)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidToken), "got %v", err)

	other, err := NewManager("another-secret", time.Hour, memory.New(), nil, logger.NewDiscard())
	require.NoError(t, err)
	_, err = other.Verify(ctx, token)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidToken))

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Verify(ctx, token)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, 403, se.HTTPStatus)
	assert.Equal(t, "Invalid or expired token", se.Message)
}

func TestRevokedTokenIsUnauthorized(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	token, _, err := m.Issue(ctx, user.User{ID: "u1", Email: "dana@example.com"})
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, token))
	require.NoError(t, m.Revoke(ctx, token), "revoking twice is harmless")

	_, err = m.Verify(ctx, token)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeUnauthorized, se.Code)
	assert.Equal(t, "Session expired", se.Message)
}

func TestRevokeAll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	u := user.User{ID: "u1", Email: "dana@example.com"}

	a, _, _ := m.Issue(ctx, u)
	b, _, _ := m.Issue(ctx, u)
	require.NoError(t, m.RevokeAll(ctx, "u1"))

	for _, tok := range []string{a, b} {
		_, err := m.Verify(ctx, tok)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	}
}

func TestJanitorSweepsExpiredSessions(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.Issue(ctx, user.User{ID: "u1", Email: "dana@example.com"})
	require.NoError(t, err)

	j := NewJanitor(store, logger.NewDiscard())
	n, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "session-janitor", j.Job("@hourly").Name())
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))

	_, err = HashPassword(strings.Repeat("x", 80), bcrypt.MinCost)
	assert.True(t, IsPasswordTooLong(err))
}

func TestEmptySecretFallsBackToEphemeralKey(t *testing.T) {
	m, err := NewManager("", time.Hour, memory.New(), nil, logger.NewDiscard())
	require.NoError(t, err)
	assert.Len(t, m.secret, 32)
}
