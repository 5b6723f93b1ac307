// Package middleware provides HTTP middleware for the tracker API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/moodtrail/tracker/internal/app/auth"
	apperrors "github.com/moodtrail/tracker/internal/errors"
	"github.com/moodtrail/tracker/internal/httputil"
	"github.com/moodtrail/tracker/pkg/logger"
)

// Verifier checks an access token.
type Verifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// AuthMiddleware authenticates requests with a bearer token or the auth
// cookie.
type AuthMiddleware struct {
	verifier  Verifier
	cookie    CookieConfig
	logger    *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the middleware. Requests for skipPaths pass
// through unauthenticated.
func NewAuthMiddleware(verifier Verifier, cookie CookieConfig, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{
		verifier:  verifier,
		cookie:    cookie,
		logger:    log,
		skipPaths: skip,
	}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := m.tokenFrom(r)
		if token == "" {
			m.respondError(w, r, apperrors.Unauthorized("Access token required"))
			return
		}

		id, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeInvalidToken) {
				ClearAuthCookie(w, m.cookie)
			}
			m.respondError(w, r, err)
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = logger.WithUserID(ctx, id.UserID)
		m.logger.WithContext(ctx).WithField("role", id.Role).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFrom prefers the Authorization header and falls back to the cookie.
func (m *AuthMiddleware) tokenFrom(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	if c, err := r.Cookie(m.cookie.name()); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, err)
	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": httputil.StatusOf(err),
	}).Warn("authentication failed")
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			httputil.WriteError(w, apperrors.Unauthorized("Access token required"))
			return
		}
		if !id.IsAdmin() {
			httputil.WriteError(w, apperrors.Forbidden("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
