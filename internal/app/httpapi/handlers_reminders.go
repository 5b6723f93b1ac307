package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/moodtrail/tracker/internal/app/domain/reminder"
	"github.com/moodtrail/tracker/internal/app/services/reminders"
	"github.com/moodtrail/tracker/internal/httputil"
)

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")
	list, err := h.app.Reminders.List(r.Context(), identity(r).UserID, activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	var in reminders.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.app.Reminders.Create(r.Context(), identity(r).UserID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) ownedReminder(r *http.Request) (reminder.Reminder, error) {
	rem, err := h.app.Reminders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return reminder.Reminder{}, err
	}
	if err := requireAccess(r, rem.UserID); err != nil {
		return reminder.Reminder{}, err
	}
	return rem, nil
}

func (h *Handler) getReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := h.ownedReminder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rem)
}

func (h *Handler) updateReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := h.ownedReminder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var in reminders.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.app.Reminders.Update(r.Context(), rem.ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := h.ownedReminder(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.app.Reminders.Delete(r.Context(), rem.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message("Reminder deleted successfully"))
}

// reminderStream upgrades to a websocket that receives the caller's in_app
// reminders as they fall due.
func (h *Handler) reminderStream(w http.ResponseWriter, r *http.Request) {
	userID := identity(r).UserID
	if err := h.app.Hub.ServeWS(w, r, userID); err != nil {
		h.log.WithContext(r.Context()).WithError(err).WithField("user_id", userID).Debug("reminder stream not opened")
	}
}
