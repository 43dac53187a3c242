package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mariner-lms/internal/apierr"
	"github.com/mind-engage/mariner-lms/internal/logger"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with {error, code?, details?}. Errors that are not
// *apierr.Error are reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := apierr.StatusOf(err)
	body := errorBody{Error: "internal server error"}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		body = errorBody{Error: ae.Error(), Code: ae.Code, Details: ae.Details}
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func badJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad json", Code: "bad_json"})
}
