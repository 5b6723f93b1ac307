package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/moodtrail/tracker/internal/app/domain/user"
	"github.com/moodtrail/tracker/internal/app/metrics"
	"github.com/moodtrail/tracker/internal/app/services/users"
	"github.com/moodtrail/tracker/internal/httputil"
	"github.com/moodtrail/tracker/internal/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      user.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.app.Users.Register(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.app.Users.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		metrics.RecordLogin(false)
		httputil.WriteError(w, err)
		return
	}
	token, expiresAt, err := h.app.Auth.Issue(r.Context(), u)
	if err != nil {
		metrics.RecordLogin(false)
		httputil.WriteError(w, err)
		return
	}
	metrics.RecordLogin(true)
	middleware.SetAuthCookie(w, h.opts.Cookie, token, h.app.Auth.TTL())
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: u})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := h.app.Auth.Revoke(r.Context(), id.Token); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("revoke session on logout")
	}
	middleware.ClearAuthCookie(w, h.opts.Cookie)
	httputil.WriteJSON(w, http.StatusOK, message("Logged out successfully"))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), identity(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"user": u, "role": identity(r).Role})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Users.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := requireAccess(r, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.app.Users.Profile(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := requireAccess(r, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var in users.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.app.Users.Update(r.Context(), id, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := requireAccess(r, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.app.Users.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if identity(r).UserID == id {
		middleware.ClearAuthCookie(w, h.opts.Cookie)
	}
	httputil.WriteJSON(w, http.StatusOK, message("User account deleted successfully"))
}
