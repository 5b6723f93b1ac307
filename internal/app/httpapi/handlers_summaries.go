package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/moodtrail/tracker/internal/app/domain/summary"
	"github.com/moodtrail/tracker/internal/app/services/summaries"
	"github.com/moodtrail/tracker/internal/httputil"
)

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Summaries.List(r.Context(), identity(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createSummary(w http.ResponseWriter, r *http.Request) {
	var in summaries.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.app.Summaries.Create(r.Context(), identity(r).UserID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// generateSummary builds the digest of one week. An empty body means last
// week. An already summarised week answers 200 with the stored summary.
func (h *Handler) generateSummary(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var weekStart time.Time
	if len(bytes.TrimSpace(raw)) > 0 {
		var in struct {
			WeekStart string `json:"weekStart"`
		}
		if err := decodeJSON(bytes.NewReader(raw), &in); err != nil {
			httputil.WriteError(w, err)
			return
		}
		if in.WeekStart != "" {
			if weekStart, err = summaries.ParseTime("weekStart", in.WeekStart); err != nil {
				httputil.WriteError(w, err)
				return
			}
		}
	}

	sm, created, err := h.app.Summaries.Generate(r.Context(), identity(r).UserID, weekStart)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, sm)
}

func (h *Handler) ownedSummary(r *http.Request) (summary.Summary, error) {
	sm, err := h.app.Summaries.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return summary.Summary{}, err
	}
	if err := requireAccess(r, sm.UserID); err != nil {
		return summary.Summary{}, err
	}
	return sm, nil
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	sm, err := h.ownedSummary(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sm)
}

func (h *Handler) deleteSummary(w http.ResponseWriter, r *http.Request) {
	sm, err := h.ownedSummary(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.app.Summaries.Delete(r.Context(), sm.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message("Summary deleted successfully"))
}
