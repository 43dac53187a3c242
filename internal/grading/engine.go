package grading

import (
	"github.com/mind-engage/mariner-lms/internal/content"
)

// Result is the outcome of grading a single question response.
type Result struct {
	Correct   bool
	Points    float64 // points awarded
	MaxPoints float64 // the item's possible points
}

// Strategy grades one question type.
type Strategy interface {
	Grade(q content.Question, maxPoints float64, r content.Response) Result
}

// Grader routes by question type to the matching Strategy.
type Grader interface {
	Grade(q content.Question, maxPoints float64, r content.Response) Result
}

type defaultGrader struct {
	strategies map[content.QuestionType]Strategy
}

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[content.QuestionType]Strategy{
			content.SingleChoice:   singleChoiceStrategy{},
			content.TrueFalse:      singleChoiceStrategy{},
			content.MultipleChoice: multipleChoiceStrategy{},
		},
	}
}

// Grade never fails: unknown question types and absent responses score zero.
func (g *defaultGrader) Grade(q content.Question, maxPoints float64, r content.Response) Result {
	s, ok := g.strategies[q.Type]
	if !ok || r.IsZero() {
		return Result{MaxPoints: maxPoints}
	}
	return s.Grade(q, maxPoints, r)
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(q content.Question, maxPoints float64, r content.Response) Result {
	res := Result{MaxPoints: maxPoints}
	resp, ok := r.Single()
	if !ok {
		return res
	}
	for _, o := range q.Options {
		if o.IsCorrect {
			if resp == o.ID {
				res.Correct = true
				res.Points = maxPoints
			}
			return res
		}
	}
	return res
}

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q content.Question, maxPoints float64, r content.Response) Result {
	res := Result{MaxPoints: maxPoints}
	correct := map[string]struct{}{}
	for _, o := range q.Options {
		if o.IsCorrect {
			correct[o.ID] = struct{}{}
		}
	}
	if setEqual(correct, toSet(r.Values())) {
		res.Correct = true
		res.Points = maxPoints
	}
	return res
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
