package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/moodtrail/tracker/internal/app/domain/journal"
	journalsvc "github.com/moodtrail/tracker/internal/app/services/journal"
	"github.com/moodtrail/tracker/internal/app/services/summaries"
	"github.com/moodtrail/tracker/internal/httputil"
)

// journalFilter maps query parameters onto a listing filter scoped to the
// caller. Admins may list another user's entries with userId.
func journalFilter(r *http.Request) (journal.Filter, error) {
	q := r.URL.Query()
	f := journal.Filter{
		UserID: identity(r).UserID,
		Search: strings.TrimSpace(q.Get("q")),
		Mood:   strings.TrimSpace(q.Get("mood")),
		Date:   strings.TrimSpace(q.Get("date")),
		Tag:    strings.TrimSpace(q.Get("tag")),
	}
	if owner := strings.TrimSpace(q.Get("userId")); owner != "" {
		if err := requireAccess(r, owner); err != nil {
			return journal.Filter{}, err
		}
		f.UserID = owner
	}

	var err error
	if raw := q.Get("from"); raw != "" {
		if f.From, err = summaries.ParseTime("from", raw); err != nil {
			return journal.Filter{}, err
		}
	}
	if raw := q.Get("to"); raw != "" {
		if f.To, err = summaries.ParseTime("to", raw); err != nil {
			return journal.Filter{}, err
		}
	}
	if f.Limit, err = parseLimit(q.Get("limit")); err != nil {
		return journal.Filter{}, err
	}
	if f.Offset, err = parseLimit(q.Get("offset")); err != nil {
		return journal.Filter{}, err
	}
	return f, nil
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	filter, err := journalFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.app.Journal.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) parseEntry(r *http.Request) (journalsvc.Input, error) {
	raw, err := readBody(r)
	if err != nil {
		return journalsvc.Input{}, err
	}
	return journalsvc.ParseInput(raw)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseEntry(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entry, err := h.app.Journal.Create(r.Context(), identity(r).UserID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

// ownedEntry loads the entry named by the route and checks the caller may
// touch it.
func (h *Handler) ownedEntry(r *http.Request) (journal.Entry, error) {
	entry, err := h.app.Journal.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return journal.Entry{}, err
	}
	if err := requireAccess(r, entry.UserID); err != nil {
		return journal.Entry{}, err
	}
	return entry, nil
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ownedEntry(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ownedEntry(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	in, err := h.parseEntry(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	updated, err := h.app.Journal.Update(r.Context(), entry.ID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ownedEntry(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.app.Journal.Delete(r.Context(), entry.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message("Journal entry deleted successfully"))
}
