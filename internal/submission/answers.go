package submission

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mariner-lms/internal/content"
)

const defaultWriteConcurrency = 8

// GradedAnswer is the desired end state of one question's answer record.
type GradedAnswer struct {
	Question content.ID
	Response content.Response
	Correct  bool
	Points   float64
}

// IndexAnswers maps question id to the id of its stored answer. When the
// store holds duplicates for a question the first one wins.
func IndexAnswers(existing []content.SubmissionAnswer) map[content.ID]content.ID {
	idx := make(map[content.ID]content.ID, len(existing))
	for _, a := range existing {
		if a.Question.IsZero() || a.ID.IsZero() {
			continue
		}
		if _, ok := idx[a.Question]; !ok {
			idx[a.Question] = a.ID
		}
	}
	return idx
}

// AnswerWrite is one planned store call. A zero ExistingID means create.
type AnswerWrite struct {
	ExistingID content.ID
	Answer     content.SubmissionAnswer
}

func (w AnswerWrite) IsCreate() bool { return w.ExistingID.IsZero() }

// AnswerReconciler keeps one SubmissionAnswer per (submission, question).
type AnswerReconciler struct {
	Store content.AnswerStore
	Limit int
}

func NewAnswerReconciler(store content.AnswerStore, limit int) *AnswerReconciler {
	if limit <= 0 {
		limit = defaultWriteConcurrency
	}
	return &AnswerReconciler{Store: store, Limit: limit}
}

// Plan turns graded answers into writes. Later entries for the same question
// replace earlier ones so every question gets exactly one write.
func (r *AnswerReconciler) Plan(submission content.ID, existing map[content.ID]content.ID, graded []GradedAnswer) []AnswerWrite {
	pos := make(map[content.ID]int, len(graded))
	plan := make([]AnswerWrite, 0, len(graded))
	for _, g := range graded {
		w := AnswerWrite{
			ExistingID: existing[g.Question],
			Answer: content.SubmissionAnswer{
				Submission:   submission,
				Question:     g.Question,
				Response:     g.Response,
				IsCorrect:    g.Correct,
				PointsEarned: g.Points,
			},
		}
		if i, ok := pos[g.Question]; ok {
			plan[i] = w
			continue
		}
		pos[g.Question] = len(plan)
		plan = append(plan, w)
	}
	return plan
}

// Apply runs the planned writes concurrently and returns the first failure.
// Writes already issued are not rolled back; replaying the same plan is safe
// once IndexAnswers sees the created rows.
func (r *AnswerReconciler) Apply(ctx context.Context, plan []AnswerWrite) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Limit)
	for _, w := range plan {
		g.Go(func() error {
			if w.IsCreate() {
				if _, err := r.Store.CreateSubmissionAnswer(ctx, w.Answer); err != nil {
					return fmt.Errorf("create answer for question %s: %w", w.Answer.Question, err)
				}
				return nil
			}
			if _, err := r.Store.UpdateSubmissionAnswer(ctx, w.ExistingID, w.Answer); err != nil {
				return fmt.Errorf("update answer %s: %w", w.ExistingID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reconcile plans and applies in one step.
func (r *AnswerReconciler) Reconcile(ctx context.Context, submission content.ID, existing []content.SubmissionAnswer, graded []GradedAnswer) (int, error) {
	plan := r.Plan(submission, IndexAnswers(existing), graded)
	if err := r.Apply(ctx, plan); err != nil {
		return 0, err
	}
	return len(plan), nil
}
