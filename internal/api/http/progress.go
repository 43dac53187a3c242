package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mariner-lms/internal/apierr"
	auth "github.com/mind-engage/mariner-lms/internal/auth/middleware"
	"github.com/mind-engage/mariner-lms/internal/content"
	"github.com/mind-engage/mariner-lms/internal/logger"
	"github.com/mind-engage/mariner-lms/internal/progress"
)

type LessonService interface {
	SetLessonCompletion(ctx context.Context, req progress.LessonRequest) (progress.LessonResult, error)
	CompletedLessons(ctx context.Context, identity, courseID string) ([]content.ID, error)
}

// POST /api/progress/lessons  { "courseId", "lessonId", "completed" }
// Ids may be strings or numbers.
func LessonCompletionHandler(svc LessonService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CourseID  content.ID `json:"courseId"`
			LessonID  content.ID `json:"lessonId"`
			Completed *bool      `json:"completed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w)
			return
		}
		if req.CourseID.IsZero() || req.LessonID.IsZero() || req.Completed == nil {
			writeError(w, r, log, apierr.BadRequest("missing_fields", "courseId, lessonId and completed are required"))
			return
		}
		res, err := svc.SetLessonCompletion(r.Context(), progress.LessonRequest{
			Identity:  auth.SubjectFromContext(r.Context()),
			CourseID:  req.CourseID.String(),
			LessonID:  req.LessonID.String(),
			Completed: *req.Completed,
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /api/courses/{courseID}/completed-lessons
func CompletedLessonsHandler(svc LessonService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := svc.CompletedLessons(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "courseID"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]content.ID{"completedLessons": ids})
	}
}
