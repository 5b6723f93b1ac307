// Package httputil holds the JSON response helpers shared by the HTTP layer
// and its middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/moodtrail/tracker/internal/errors"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError maps err onto a status and error body. Errors that are not
// ServiceErrors are reported as 500 without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	se := apperrors.GetServiceError(err)
	if se == nil {
		se = apperrors.Internal("", err)
	}
	WriteJSON(w, se.HTTPStatus, ErrorBody{Error: se.Message, Code: string(se.Code), Details: se.Details})
}

// StatusOf returns the status WriteError would answer err with.
func StatusOf(err error) int {
	if se := apperrors.GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
