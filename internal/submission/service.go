package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mariner-lms/internal/apierr"
	"github.com/mind-engage/mariner-lms/internal/content"
	"github.com/mind-engage/mariner-lms/internal/grading"
	"github.com/mind-engage/mariner-lms/internal/lock"
	"github.com/mind-engage/mariner-lms/internal/logger"
	"github.com/mind-engage/mariner-lms/internal/progress"
	syncx "github.com/mind-engage/mariner-lms/internal/sync"
)

var tracer = otel.Tracer("github.com/mind-engage/mariner-lms/internal/submission")

// EventLog records grading events for later audit or repair.
type EventLog interface {
	Append(ctx context.Context, e syncx.Event) error
}

// Outcome is what a learner sees after submitting.
type Outcome struct {
	Score            float64 `json:"score"`
	Passed           bool    `json:"passed"`
	PointsEarned     float64 `json:"pointsEarned"`
	PointsPossible   float64 `json:"pointsPossible"`
	ProgressRecorded bool    `json:"progressRecorded"`
}

// Service grades submissions and records their outcome.
type Service struct {
	Assessments content.AssessmentReader
	Submissions content.SubmissionStore
	Answers     *AnswerReconciler
	Progress    *progress.Reconciler
	Grader      grading.Grader
	Locker      lock.Locker // optional
	Events      EventLog    // optional
	Log         *logger.Logger
	Now         func() time.Time
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.Locker = l } }

func WithEventLog(e EventLog) Option { return func(s *Service) { s.Events = e } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.Now = now } }

// WithWriteConcurrency caps parallel answer writes per request.
func WithWriteConcurrency(n int) Option {
	return func(s *Service) { s.Answers.Limit = n }
}

func NewService(gw content.Gateway, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		Assessments: gw,
		Submissions: gw,
		Answers:     NewAnswerReconciler(gw, defaultWriteConcurrency),
		Progress:    progress.NewReconciler(gw),
		Grader:      grading.NewDefaultGrader(),
		Log:         log.With("service", "SubmissionService"),
		Now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.Answers.Limit <= 0 {
		s.Answers.Limit = defaultWriteConcurrency
	}
	return s
}

// Submit grades the submission and moves it to submitted. A nil or empty
// responses map grades the answers already saved on the submission.
func (s *Service) Submit(ctx context.Context, submissionID string, responses content.Responses) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "submission.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", submissionID))

	out, err := s.submit(ctx, content.ParseID(submissionID), responses)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	span.SetAttributes(
		attribute.Float64("submission.score", out.Score),
		attribute.Bool("submission.passed", out.Passed),
		attribute.Bool("progress.recorded", out.ProgressRecorded),
	)
	return out, nil
}

func (s *Service) submit(ctx context.Context, id content.ID, responses content.Responses) (Outcome, error) {
	if id.IsZero() {
		return Outcome{}, apierr.BadRequest("missing_fields", "submission id is required")
	}
	release, err := s.acquire(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	sub, err := s.loadOpen(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	asm, existing, err := s.loadAttempt(ctx, sub)
	if err != nil {
		return Outcome{}, err
	}

	if len(responses) == 0 {
		responses = SavedResponses(existing)
	} else {
		responses = normalize(responses)
	}

	tally, graded := s.grade(asm, responses)
	out := Outcome{
		Score:          tally.Score(),
		Passed:         tally.Passed(sub.PassingScore),
		PointsEarned:   tally.PointsEarned,
		PointsPossible: tally.PointsPossible,
	}
	log := s.Log.With("submission", id, "assessment", asm.ID, "trainee", sub.Trainee)

	key := content.ProgressKey{Trainee: sub.Trainee, Course: sub.Course, Item: content.AssessmentRef(asm.ID)}
	trackProgress := !key.Trainee.IsZero() && !key.Course.IsZero()

	// Answers and the progress lookup are independent. Only the answer
	// writes can abort the submit.
	var (
		prior     *content.CourseItemProgress
		lookupErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Answers.Reconcile(gctx, id, existing, graded)
		return err
	})
	if trackProgress {
		g.Go(func() error {
			prior, lookupErr = s.Progress.Lookup(gctx, key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("answer write failed", "error", err)
		return Outcome{}, downstream("answer_write_failed", err)
	}

	now := s.Now().UTC()
	var finalizeErr, progressErr error
	var w errgroup.Group
	w.Go(func() error {
		_, finalizeErr = s.Submissions.FinalizeSubmission(ctx, id, content.SubmissionResult{
			Score:          out.Score,
			PointsEarned:   out.PointsEarned,
			PointsPossible: out.PointsPossible,
			CompletedAt:    now,
		})
		return nil
	})
	switch {
	case !trackProgress:
		progressErr = errors.New("submission has no trainee or course reference")
	case lookupErr != nil:
		progressErr = lookupErr
	default:
		w.Go(func() error {
			_, _, progressErr = s.Progress.Apply(ctx, prior, key, progress.GradedOutcome(out.Passed, out.Score, sub.Enrollment, now))
			return nil
		})
	}
	_ = w.Wait()

	if finalizeErr != nil {
		if errors.Is(finalizeErr, content.ErrConflict) {
			return Outcome{}, apierr.Conflict("submission_not_in_progress", "submission was already submitted")
		}
		log.Error("finalize submission failed", "error", finalizeErr)
		return Outcome{}, downstream("finalize_failed", finalizeErr)
	}

	out.ProgressRecorded = progressErr == nil
	if progressErr != nil {
		log.Error("progress write failed", "error", progressErr)
		s.record(ctx, syncx.TypeProgressWriteFailed, id, map[string]any{
			"trainee":    sub.Trainee,
			"course":     sub.Course,
			"assessment": asm.ID,
			"score":      out.Score,
			"passed":     out.Passed,
			"error":      progressErr.Error(),
		})
	}
	s.record(ctx, syncx.TypeSubmissionGraded, id, out)
	log.Info("submission graded",
		"score", out.Score, "passed", out.Passed,
		"points_earned", out.PointsEarned, "points_possible", out.PointsPossible,
		"items", tally.Items, "correct", tally.Correct)
	return out, nil
}

// SaveAnswers stores raw responses on an open submission without grading.
// Responses to questions outside the assessment are ignored.
func (s *Service) SaveAnswers(ctx context.Context, submissionID string, responses content.Responses) (int, error) {
	ctx, span := tracer.Start(ctx, "submission.SaveAnswers")
	defer span.End()
	span.SetAttributes(attribute.String("submission.id", submissionID))

	id := content.ParseID(submissionID)
	if id.IsZero() {
		return 0, apierr.BadRequest("missing_fields", "submission id is required")
	}
	if len(responses) == 0 {
		return 0, apierr.BadRequest("missing_responses", "responses are required")
	}
	sub, err := s.loadOpen(ctx, id)
	if err != nil {
		return 0, err
	}
	asm, existing, err := s.loadAttempt(ctx, sub)
	if err != nil {
		return 0, err
	}

	responses = normalize(responses)
	var pending []GradedAnswer
	for _, it := range asm.OrderedItems() {
		r, ok := responses[it.QuestionID]
		if !ok || r.IsZero() {
			continue
		}
		pending = append(pending, GradedAnswer{Question: it.QuestionID, Response: r})
	}
	n, err := s.Answers.Reconcile(ctx, id, existing, pending)
	if err != nil {
		s.Log.Error("save answers failed", "submission", id, "error", err)
		span.RecordError(err)
		return 0, downstream("answer_write_failed", err)
	}
	s.Log.Debug("answers saved", "submission", id, "count", n)
	return n, nil
}

func (s *Service) acquire(ctx context.Context, id content.ID) (func(), error) {
	if s.Locker == nil {
		return func() {}, nil
	}
	release, err := s.Locker.Acquire(ctx, "submission:"+id.String())
	if errors.Is(err, lock.ErrHeld) {
		return nil, apierr.Conflict("submission_busy", "submission is already being submitted")
	}
	if err != nil {
		// finalize is a conditional write, so carry on without the lock
		s.Log.Warn("submit lock unavailable", "submission", id, "error", err)
		return func() {}, nil
	}
	return release, nil
}

// loadOpen fetches the submission and rejects it unless it is in progress.
func (s *Service) loadOpen(ctx context.Context, id content.ID) (content.Submission, error) {
	sub, err := s.Submissions.GetSubmission(ctx, id)
	if errors.Is(err, content.ErrNotFound) {
		return sub, apierr.NotFound("submission_not_found", "submission not found")
	}
	if err != nil {
		return sub, downstream("submission_lookup_failed", err)
	}
	if sub.Status != content.SubmissionInProgress {
		return sub, apierr.Conflict("submission_not_in_progress", fmt.Sprintf("submission is %s", sub.Status))
	}
	return sub, nil
}

// loadAttempt fetches the assessment and the stored answers together.
func (s *Service) loadAttempt(ctx context.Context, sub content.Submission) (content.Assessment, []content.SubmissionAnswer, error) {
	var (
		asm      content.Assessment
		existing []content.SubmissionAnswer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asm, err = s.Assessments.GetAssessment(gctx, sub.Assessment)
		if errors.Is(err, content.ErrNotFound) {
			return apierr.NotFound("assessment_not_found", "assessment not found")
		}
		if err != nil {
			return downstream("assessment_lookup_failed", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		existing, err = s.Answers.Store.ListSubmissionAnswers(gctx, sub.ID)
		if err != nil {
			return downstream("answer_lookup_failed", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return content.Assessment{}, nil, err
	}
	return asm, existing, nil
}

func (s *Service) grade(asm content.Assessment, responses content.Responses) (grading.Tally, []GradedAnswer) {
	var tally grading.Tally
	items := asm.OrderedItems()
	graded := make([]GradedAnswer, 0, len(items))
	for _, it := range items {
		pts := it.PointsPossible()
		if it.QuestionID.IsZero() {
			// the question was deleted; the item still counts but has nowhere
			// to store an answer
			s.Log.Warn("assessment item without question reference", "assessment", asm.ID, "order", it.Order)
			tally.Add(grading.Result{MaxPoints: pts})
			continue
		}
		r := responses[it.QuestionID]
		res := grading.Result{MaxPoints: pts}
		if it.Question == nil {
			s.Log.Warn("assessment item without question body", "assessment", asm.ID, "question", it.QuestionID)
		} else {
			res = s.Grader.Grade(*it.Question, pts, r)
		}
		tally.Add(res)
		graded = append(graded, GradedAnswer{
			Question: it.QuestionID,
			Response: r,
			Correct:  res.Correct,
			Points:   res.Points,
		})
	}
	return tally, graded
}

func (s *Service) record(ctx context.Context, typ string, id content.ID, data any) {
	if s.Events == nil {
		return
	}
	ev, err := syncx.NewEvent(typ, id.String(), data)
	if err == nil {
		err = s.Events.Append(ctx, ev)
	}
	if err != nil {
		s.Log.Warn("event log append failed", "type", typ, "submission", id, "error", err)
	}
}

// SavedResponses rebuilds a response set from stored answers. The first
// stored answer per question wins, matching IndexAnswers.
func SavedResponses(existing []content.SubmissionAnswer) content.Responses {
	out := make(content.Responses, len(existing))
	for _, a := range existing {
		if a.Question.IsZero() || a.Response.IsZero() {
			continue
		}
		if _, ok := out[a.Question]; !ok {
			out[a.Question] = a.Response
		}
	}
	return out
}

// normalize re-keys responses by canonical question id so "007" and 7 meet.
func normalize(in content.Responses) content.Responses {
	out := make(content.Responses, len(in))
	for k, v := range in {
		out[content.ParseID(k.String())] = v
	}
	return out
}

func downstream(code string, err error) *apierr.Error {
	return apierr.Internal(code, err, content.ErrorBody(err))
}
