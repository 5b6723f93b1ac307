package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/moodtrail/tracker/internal/app/services/exports"
	"github.com/moodtrail/tracker/internal/app/services/records"
	"github.com/moodtrail/tracker/internal/httputil"
)

// dashboard serves the caller's dashboard, or another user's for admins.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if userID == "" {
		userID = identity(r).UserID
	}
	if err := requireAccess(r, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.app.Dashboard.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	format, err := exports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.app.Exports.Export(r.Context(), identity(r).UserID, format)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

func (h *Handler) exportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.app.Exports.Logs(r.Context(), identity(r).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, logs)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Records.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var in records.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.app.Records.Create(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
