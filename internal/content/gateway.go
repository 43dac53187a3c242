package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound = errors.New("content: not found")
	// ErrConflict is returned by conditional writes whose precondition no
	// longer holds, e.g. finalizing a submission that is not in progress.
	ErrConflict = errors.New("content: conflict")
)

// RemoteError is a non-2xx answer from the content store. Body keeps the
// store's error payload so callers can surface it.
type RemoteError struct {
	Op     string
	Status int
	Body   string
	// RetryAfter is the server's requested wait in seconds, 0 when absent.
	RetryAfter int
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Body)
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

type AssessmentReader interface {
	// GetAssessment returns the assessment with questions and options populated.
	GetAssessment(ctx context.Context, id ID) (Assessment, error)
}

type SubmissionStore interface {
	GetSubmission(ctx context.Context, id ID) (Submission, error)
	// FinalizeSubmission moves an in_progress submission to submitted. It
	// fails with ErrConflict when the submission is no longer in progress.
	FinalizeSubmission(ctx context.Context, id ID, res SubmissionResult) (Submission, error)
}

type AnswerStore interface {
	ListSubmissionAnswers(ctx context.Context, submission ID) ([]SubmissionAnswer, error)
	CreateSubmissionAnswer(ctx context.Context, a SubmissionAnswer) (SubmissionAnswer, error)
	UpdateSubmissionAnswer(ctx context.Context, id ID, a SubmissionAnswer) (SubmissionAnswer, error)
}

type ProgressStore interface {
	// FindProgress returns ErrNotFound when no record matches the key.
	FindProgress(ctx context.Context, key ProgressKey) (CourseItemProgress, error)
	CreateProgress(ctx context.Context, p CourseItemProgress) (CourseItemProgress, error)
	UpdateProgress(ctx context.Context, id ID, p CourseItemProgress) (CourseItemProgress, error)
	ListProgress(ctx context.Context, f ProgressFilter) ([]CourseItemProgress, error)
}

// Directory resolves identities, courses and enrollments.
type Directory interface {
	FindTraineeByUser(ctx context.Context, user ID) (Trainee, error)
	GetCourse(ctx context.Context, id ID) (Course, error)
	FindActiveEnrollment(ctx context.Context, trainee, course ID) (Enrollment, error)
}

// Gateway is the full content store surface used by the engine.
type Gateway interface {
	AssessmentReader
	SubmissionStore
	AnswerStore
	ProgressStore
	Directory
}

// ErrorBody returns the store's error payload carried by err, if any.
func ErrorBody(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Body
	}
	return ""
}
