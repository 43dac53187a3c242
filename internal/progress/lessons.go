package progress

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mariner-lms/internal/apierr"
	"github.com/mind-engage/mariner-lms/internal/content"
	"github.com/mind-engage/mariner-lms/internal/logger"
)

var tracer = otel.Tracer("github.com/mind-engage/mariner-lms/internal/progress")

type LessonRequest struct {
	Identity  string // authenticated learner identity, not the trainee profile id
	CourseID  string
	LessonID  string
	Completed bool
}

type LessonResult struct {
	Success          bool         `json:"success"`
	CompletedLessons []content.ID `json:"completedLessons"`
}

// LessonService records lesson completion for a learner. Every call answers
// with the full set of completed lessons so clients can replace their state.
type LessonService struct {
	Directory content.Directory
	Progress  *Reconciler
	Log       *logger.Logger
	Now       func() time.Time
}

func NewLessonService(gw content.Gateway, log *logger.Logger) *LessonService {
	if log == nil {
		log = logger.Nop()
	}
	return &LessonService{
		Directory: gw,
		Progress:  NewReconciler(gw),
		Log:       log.With("service", "LessonService"),
		Now:       time.Now,
	}
}

type learnerCourse struct {
	trainee content.Trainee
	course  content.Course
}

// resolve maps the identity to a trainee profile and round-trips the course
// id through the store. Both lookups run together; a missing trainee is
// reported before an invalid course.
func (s *LessonService) resolve(ctx context.Context, identity, courseID string) (learnerCourse, error) {
	var (
		lc                    learnerCourse
		traineeErr, courseErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		lc.trainee, traineeErr = s.Directory.FindTraineeByUser(ctx, content.ParseID(identity))
		return nil
	})
	g.Go(func() error {
		lc.course, courseErr = s.Directory.GetCourse(ctx, content.ParseID(courseID))
		return nil
	})
	_ = g.Wait()

	switch {
	case errors.Is(traineeErr, content.ErrNotFound):
		return lc, apierr.NotFound("trainee_not_found", "no trainee profile for this learner")
	case traineeErr != nil:
		return lc, downstream("trainee_lookup_failed", traineeErr)
	}
	if courseErr != nil && !isBadCourseID(courseErr) {
		return lc, downstream("course_lookup_failed", courseErr)
	}
	if courseErr != nil || lc.course.ID.IsZero() {
		return lc, apierr.BadRequest("invalid_course", "invalid course id")
	}
	return lc, nil
}

// SetLessonCompletion marks one lesson completed or not completed.
func (s *LessonService) SetLessonCompletion(ctx context.Context, req LessonRequest) (LessonResult, error) {
	ctx, span := tracer.Start(ctx, "progress.SetLessonCompletion")
	defer span.End()
	span.SetAttributes(
		attribute.String("course.id", req.CourseID),
		attribute.String("lesson.id", req.LessonID),
		attribute.Bool("lesson.completed", req.Completed),
	)

	res, err := s.setLessonCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *LessonService) setLessonCompletion(ctx context.Context, req LessonRequest) (LessonResult, error) {
	if strings.TrimSpace(req.Identity) == "" {
		return LessonResult{}, apierr.New(http.StatusUnauthorized, "unauthenticated", errors.New("learner identity required"))
	}
	if strings.TrimSpace(req.CourseID) == "" || strings.TrimSpace(req.LessonID) == "" {
		return LessonResult{}, apierr.BadRequest("missing_fields", "courseId and lessonId are required")
	}

	lc, err := s.resolve(ctx, req.Identity, req.CourseID)
	if err != nil {
		return LessonResult{}, err
	}

	enr, err := s.Directory.FindActiveEnrollment(ctx, lc.trainee.ID, lc.course.ID)
	if errors.Is(err, content.ErrNotFound) {
		return LessonResult{}, apierr.NotFound("enrollment_not_found", "no active enrollment for this course")
	}
	if err != nil {
		return LessonResult{}, downstream("enrollment_lookup_failed", err)
	}

	key := content.ProgressKey{
		Trainee: lc.trainee.ID,
		Course:  lc.course.ID,
		Item:    content.LessonRef(content.ParseID(req.LessonID)),
	}
	_, change, err := s.Progress.Upsert(ctx, key, LessonOutcome(req.Completed, enr.ID, s.Now().UTC()))
	if err != nil {
		s.Log.Error("lesson progress write failed", "trainee", lc.trainee.ID, "course", lc.course.ID, "lesson", key.Item.ID, "error", err)
		return LessonResult{}, downstream("progress_write_failed", err)
	}
	s.Log.Info("lesson progress recorded",
		"trainee", lc.trainee.ID, "course", lc.course.ID, "lesson", key.Item.ID,
		"completed", req.Completed, "change", change)

	ids, err := s.Progress.CompletedLessons(ctx, lc.trainee.ID, lc.course.ID)
	if err != nil {
		return LessonResult{}, downstream("progress_list_failed", err)
	}
	return LessonResult{Success: true, CompletedLessons: ids}, nil
}

// CompletedLessons answers the same list SetLessonCompletion returns,
// without writing.
func (s *LessonService) CompletedLessons(ctx context.Context, identity, courseID string) ([]content.ID, error) {
	ctx, span := tracer.Start(ctx, "progress.CompletedLessons")
	defer span.End()

	if strings.TrimSpace(identity) == "" {
		return nil, apierr.New(http.StatusUnauthorized, "unauthenticated", errors.New("learner identity required"))
	}
	if strings.TrimSpace(courseID) == "" {
		return nil, apierr.BadRequest("missing_fields", "courseId is required")
	}
	lc, err := s.resolve(ctx, identity, courseID)
	if err != nil {
		return nil, err
	}
	ids, err := s.Progress.CompletedLessons(ctx, lc.trainee.ID, lc.course.ID)
	if err != nil {
		return nil, downstream("progress_list_failed", err)
	}
	return ids, nil
}

// downstream wraps a content store failure as a 500 carrying the store's
// error body when there is one.
func downstream(code string, err error) *apierr.Error {
	return apierr.Internal(code, err, content.ErrorBody(err))
}

// isBadCourseID reports whether the store rejected the course id itself.
// Auth failures such as 401 and 403 are ours, not the learner's.
func isBadCourseID(err error) bool {
	if errors.Is(err, content.ErrNotFound) {
		return true
	}
	var re *content.RemoteError
	return errors.As(err, &re) && re.Status == http.StatusBadRequest
}
