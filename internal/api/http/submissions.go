package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mariner-lms/internal/content"
	"github.com/mind-engage/mariner-lms/internal/logger"
	"github.com/mind-engage/mariner-lms/internal/submission"
)

type SubmissionService interface {
	Submit(ctx context.Context, submissionID string, responses content.Responses) (submission.Outcome, error)
	SaveAnswers(ctx context.Context, submissionID string, responses content.Responses) (int, error)
}

type responsesBody struct {
	Responses content.Responses `json:"responses"`
}

// POST /api/submissions/{submissionID}/submit  { "responses"?: { qid: id | [ids] } }
func SubmitHandler(svc SubmissionService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req responsesBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			badJSON(w)
			return
		}
		out, err := svc.Submit(r.Context(), chi.URLParam(r, "submissionID"), req.Responses)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PUT /api/submissions/{submissionID}/answers  { "responses": {...} }
func SaveAnswersHandler(svc SubmissionService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req responsesBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w)
			return
		}
		n, err := svc.SaveAnswers(r.Context(), chi.URLParam(r, "submissionID"), req.Responses)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"saved": n})
	}
}
