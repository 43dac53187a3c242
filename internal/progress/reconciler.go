package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mariner-lms/internal/content"
)

// ErrNoEnrollment is returned when a lesson record would have to be created
// without an active enrollment to hang it on.
var ErrNoEnrollment = errors.New("progress: active enrollment required")

// Change is what an upsert did to the store.
type Change int

const (
	Unchanged Change = iota
	Created
	Updated
)

func (c Change) String() string {
	switch c {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Outcome is the learner event being recorded against an item. Assessment
// items read Passed and Score; lesson items read Completed.
type Outcome struct {
	Completed  bool
	Passed     bool
	Score      *float64
	Enrollment content.ID
	At         time.Time
}

// GradedOutcome is a finished assessment attempt.
func GradedOutcome(passed bool, score float64, enrollment content.ID, at time.Time) Outcome {
	return Outcome{Completed: true, Passed: passed, Score: &score, Enrollment: enrollment, At: at}
}

// LessonOutcome marks a lesson completed or not completed.
func LessonOutcome(completed bool, enrollment content.ID, at time.Time) Outcome {
	return Outcome{Completed: completed, Enrollment: enrollment, At: at}
}

// Reconciler keeps exactly one progress record per (trainee, course, item).
type Reconciler struct {
	Store content.ProgressStore
}

func NewReconciler(store content.ProgressStore) *Reconciler {
	return &Reconciler{Store: store}
}

// Lookup returns the existing record for key, or nil when there is none.
func (r *Reconciler) Lookup(ctx context.Context, key content.ProgressKey) (*content.CourseItemProgress, error) {
	p, err := r.Store.FindProgress(ctx, key)
	if errors.Is(err, content.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find progress %s: %w", key.Item, err)
	}
	return &p, nil
}

// Upsert looks the record up and applies the outcome to it.
func (r *Reconciler) Upsert(ctx context.Context, key content.ProgressKey, o Outcome) (content.CourseItemProgress, Change, error) {
	existing, err := r.Lookup(ctx, key)
	if err != nil {
		return content.CourseItemProgress{}, Unchanged, err
	}
	return r.Apply(ctx, existing, key, o)
}

// Apply writes the outcome given the result of an earlier Lookup.
func (r *Reconciler) Apply(ctx context.Context, existing *content.CourseItemProgress, key content.ProgressKey, o Outcome) (content.CourseItemProgress, Change, error) {
	var (
		next content.CourseItemProgress
		ok   bool
		err  error
	)
	switch key.Item.Kind {
	case content.ItemAssessment:
		next = applyGraded(existing, key, o)
		ok = true
	case content.ItemLesson:
		next, ok, err = applyLesson(existing, key, o)
		if err != nil {
			return content.CourseItemProgress{}, Unchanged, err
		}
	default:
		return content.CourseItemProgress{}, Unchanged, fmt.Errorf("progress: unsupported item kind %v", key.Item.Kind)
	}
	if !ok {
		return content.CourseItemProgress{}, Unchanged, nil
	}

	if existing == nil {
		p, err := r.Store.CreateProgress(ctx, next)
		if err != nil {
			return content.CourseItemProgress{}, Unchanged, fmt.Errorf("create progress %s: %w", key.Item, err)
		}
		return p, Created, nil
	}
	p, err := r.Store.UpdateProgress(ctx, existing.ID, next)
	if err != nil {
		return content.CourseItemProgress{}, Unchanged, fmt.Errorf("update progress %s: %w", key.Item, err)
	}
	return p, Updated, nil
}

// CompletedLessons lists the ids of every lesson marked completed for the
// trainee in the course.
func (r *Reconciler) CompletedLessons(ctx context.Context, trainee, course content.ID) ([]content.ID, error) {
	records, err := r.Store.ListProgress(ctx, content.ProgressFilter{
		Trainee:       trainee,
		Course:        course,
		Kind:          content.ItemLesson,
		CompletedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	out := make([]content.ID, 0, len(records))
	seen := make(map[content.ID]struct{}, len(records))
	for _, p := range records {
		if _, dup := seen[p.Item.ID]; dup {
			continue
		}
		seen[p.Item.ID] = struct{}{}
		out = append(out, p.Item.ID)
	}
	return out, nil
}

func applyGraded(existing *content.CourseItemProgress, key content.ProgressKey, o Outcome) content.CourseItemProgress {
	at := o.At
	status := content.ProgressFailed
	if o.Passed {
		status = content.ProgressPassed
	}
	if existing == nil {
		return content.CourseItemProgress{
			Trainee:              key.Trainee,
			Course:               key.Course,
			Enrollment:           o.Enrollment,
			Item:                 key.Item,
			Status:               status,
			IsCompleted:          true,
			Attempts:             1,
			CompletionPercentage: 100,
			Score:                o.Score,
			FirstStartedAt:       &at,
			LastAccessedAt:       &at,
			CompletedAt:          &at,
		}
	}
	p := *existing
	p.Status = status
	p.IsCompleted = true
	p.Attempts++
	p.CompletionPercentage = 100
	p.Score = o.Score
	p.LastAccessedAt = &at
	p.CompletedAt = &at
	if p.FirstStartedAt == nil {
		p.FirstStartedAt = &at
	}
	if p.Enrollment.IsZero() {
		p.Enrollment = o.Enrollment
	}
	return p
}

// applyLesson reports ok=false when nothing needs writing.
func applyLesson(existing *content.CourseItemProgress, key content.ProgressKey, o Outcome) (content.CourseItemProgress, bool, error) {
	at := o.At
	if existing == nil {
		if !o.Completed {
			return content.CourseItemProgress{}, false, nil
		}
		if o.Enrollment.IsZero() {
			return content.CourseItemProgress{}, false, ErrNoEnrollment
		}
		return content.CourseItemProgress{
			Trainee:              key.Trainee,
			Course:               key.Course,
			Enrollment:           o.Enrollment,
			Item:                 key.Item,
			Status:               content.ProgressCompleted,
			IsCompleted:          true,
			CompletionPercentage: 100,
			FirstStartedAt:       &at,
			LastAccessedAt:       &at,
			CompletedAt:          &at,
		}, true, nil
	}

	p := *existing
	p.LastAccessedAt = &at
	if p.FirstStartedAt == nil {
		p.FirstStartedAt = &at
	}
	if o.Completed {
		p.Status = content.ProgressCompleted
		p.IsCompleted = true
		p.CompletionPercentage = 100
		p.CompletedAt = &at
	} else {
		p.Status = content.ProgressInProgress
		p.IsCompleted = false
		p.CompletionPercentage = 0
		p.CompletedAt = nil
	}
	return p, true, nil
}
