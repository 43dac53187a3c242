package submission

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mariner-lms/internal/apierr"
	"github.com/mind-engage/mariner-lms/internal/content"
	"github.com/mind-engage/mariner-lms/internal/lock"
	syncx "github.com/mind-engage/mariner-lms/internal/sync"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type recordedEvents struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (r *recordedEvents) Append(_ context.Context, e syncx.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func pts(v float64) *float64 { return &v }

func singleChoice(id content.ID, correct string) *content.Question {
	return &content.Question{
		ID:   id,
		Type: content.SingleChoice,
		Options: []content.Option{
			{ID: "a", IsCorrect: correct == "a"},
			{ID: "b", IsCorrect: correct == "b"},
		},
	}
}

// seed stores a two question assessment worth 10 points each and one open
// submission against it.
func seed(t *testing.T, passing float64, submissionIDs ...content.ID) *content.Memory {
	t.Helper()
	gw := content.NewMemory()
	gw.PutAssessment(content.Assessment{
		ID:           "asm-1",
		PassingScore: passing,
		Items: []content.Item{
			{QuestionID: "q2", Question: singleChoice("q2", "b"), Points: pts(10), Order: 2},
			{QuestionID: "q1", Question: singleChoice("q1", "a"), Points: pts(10), Order: 1},
		},
	})
	for _, id := range submissionIDs {
		gw.PutSubmission(content.Submission{
			ID:           id,
			Status:       content.SubmissionInProgress,
			Assessment:   "asm-1",
			Trainee:      "tr-1",
			Course:       "c-1",
			Enrollment:   "en-1",
			PassingScore: passing,
		})
	}
	return gw
}

func newService(gw *content.Memory, opts ...Option) *Service {
	return NewService(gw, nil, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func halfRight() content.Responses {
	return content.Responses{
		"q1": content.SingleResponse("a"),
		"q2": content.SingleResponse("a"),
	}
}

func TestSubmitScoresAgainstPassingSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		passing float64
		passed  bool
	}{
		{"threshold above score", 70, false},
		{"threshold equal to score", 50, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := seed(t, tc.passing, "sub-1")
			out, err := newService(gw).Submit(context.Background(), "sub-1", halfRight())
			require.NoError(t, err)

			assert.Equal(t, 50.0, out.Score)
			assert.Equal(t, tc.passed, out.Passed)
			assert.Equal(t, 10.0, out.PointsEarned)
			assert.Equal(t, 20.0, out.PointsPossible)
			assert.True(t, out.ProgressRecorded)

			sub, err := gw.GetSubmission(context.Background(), "sub-1")
			require.NoError(t, err)
			assert.Equal(t, content.SubmissionSubmitted, sub.Status)
			assert.Equal(t, 50.0, sub.Score)
			require.NotNil(t, sub.CompletedAt)
			assert.True(t, sub.CompletedAt.Equal(fixedNow))

			answers := gw.Answers("sub-1")
			require.Len(t, answers, 2)
			byQ := map[content.ID]content.SubmissionAnswer{}
			for _, a := range answers {
				byQ[a.Question] = a
			}
			assert.True(t, byQ["q1"].IsCorrect)
			assert.Equal(t, 10.0, byQ["q1"].PointsEarned)
			assert.False(t, byQ["q2"].IsCorrect)
			assert.Equal(t, 0.0, byQ["q2"].PointsEarned)

			progress := gw.AllProgress()
			require.Len(t, progress, 1)
			assert.Equal(t, content.AssessmentRef("asm-1"), progress[0].Item)
			assert.Equal(t, 1, progress[0].Attempts)
			assert.True(t, progress[0].IsCompleted)
			want := content.ProgressFailed
			if tc.passed {
				want = content.ProgressPassed
			}
			assert.Equal(t, want, progress[0].Status)
		})
	}
}

func TestSubmitTwiceIsRejectedWithoutWrites(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	svc := newService(gw)
	_, err := svc.Submit(context.Background(), "sub-1", halfRight())
	require.NoError(t, err)
	writes := gw.Writes()

	_, err = svc.Submit(context.Background(), "sub-1", halfRight())
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apierr.StatusOf(err))
	assert.Equal(t, writes, gw.Writes())
}

func TestSubmitUnknownSubmission(t *testing.T) {
	gw := seed(t, 50)
	_, err := newService(gw).Submit(context.Background(), "missing", halfRight())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apierr.StatusOf(err))
	assert.Zero(t, gw.Writes())
}

func TestSubmitWithoutResponsesReusesSavedAnswers(t *testing.T) {
	gw := seed(t, 50, "saved", "fresh")
	svc := newService(gw)
	ctx := context.Background()

	n, err := svc.SaveAnswers(ctx, "saved", halfRight())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fromSaved, err := svc.Submit(ctx, "saved", nil)
	require.NoError(t, err)
	fresh, err := svc.Submit(ctx, "fresh", halfRight())
	require.NoError(t, err)

	assert.Equal(t, fresh.Score, fromSaved.Score)
	assert.Equal(t, fresh.Passed, fromSaved.Passed)
	assert.Equal(t, fresh.PointsEarned, fromSaved.PointsEarned)
	assert.Len(t, gw.Answers("saved"), 2, "grading saved answers must update them, not duplicate")
}

func TestSubmitUnansweredItemsScoreZero(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	out, err := newService(gw).Submit(context.Background(), "sub-1", content.Responses{"q1": content.SingleResponse("a")})
	require.NoError(t, err)
	assert.Equal(t, 50.0, out.Score)
	assert.Len(t, gw.Answers("sub-1"), 2)
}

func TestSubmitCountsItemsWithDeletedQuestion(t *testing.T) {
	gw := content.NewMemory()
	gw.PutAssessment(content.Assessment{
		ID: "asm-1",
		Items: []content.Item{
			{QuestionID: "q1", Question: singleChoice("q1", "a"), Points: pts(10), Order: 1},
			{Points: pts(10), Order: 2},
		},
	})
	gw.PutSubmission(content.Submission{
		ID: "sub-1", Status: content.SubmissionInProgress, Assessment: "asm-1",
		Trainee: "tr-1", Course: "c-1", PassingScore: 70,
	})

	out, err := newService(gw).Submit(context.Background(), "sub-1", content.Responses{"q1": content.SingleResponse("a")})
	require.NoError(t, err)
	assert.Equal(t, 50.0, out.Score)
	assert.False(t, out.Passed)
	assert.Equal(t, 20.0, out.PointsPossible)
	assert.Len(t, gw.Answers("sub-1"), 1)
}

func TestSubmitNormalizesNumericQuestionKeys(t *testing.T) {
	gw := content.NewMemory()
	gw.PutAssessment(content.Assessment{
		ID:    "asm-1",
		Items: []content.Item{{QuestionID: "7", Question: singleChoice("7", "a")}},
	})
	gw.PutSubmission(content.Submission{ID: "sub-1", Status: content.SubmissionInProgress, Assessment: "asm-1", Trainee: "tr-1", Course: "c-1"})

	out, err := newService(gw).Submit(context.Background(), "sub-1", content.Responses{"007": content.SingleResponse("a")})
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.Score)
	assert.Equal(t, 1.0, out.PointsPossible, "unspecified points default to 1")
}

func TestSubmitEmptyAssessmentScoresZero(t *testing.T) {
	gw := content.NewMemory()
	gw.PutAssessment(content.Assessment{ID: "asm-1"})
	gw.PutSubmission(content.Submission{ID: "sub-1", Status: content.SubmissionInProgress, Assessment: "asm-1", Trainee: "tr-1", Course: "c-1"})

	out, err := newService(gw).Submit(context.Background(), "sub-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Score)
	assert.True(t, out.Passed, "a zero threshold passes a zero score")
}

func TestSubmitIncrementsProgressAttempts(t *testing.T) {
	gw := seed(t, 50, "sub-1", "sub-2")
	svc := newService(gw)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "sub-1", content.Responses{"q1": content.SingleResponse("b")})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "sub-2", halfRight())
	require.NoError(t, err)

	progress := gw.AllProgress()
	require.Len(t, progress, 1)
	assert.Equal(t, 2, progress[0].Attempts)
	assert.Equal(t, content.ProgressPassed, progress[0].Status)
	require.NotNil(t, progress[0].Score)
	assert.Equal(t, 50.0, *progress[0].Score)
}

func TestSubmitProgressFailureIsReportedNotFatal(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	gw.FailOn(content.OpCreateProgress, &content.RemoteError{Op: "create progress", Status: http.StatusBadGateway})
	events := &recordedEvents{}

	out, err := newService(gw, WithEventLog(events)).Submit(context.Background(), "sub-1", halfRight())
	require.NoError(t, err)
	assert.False(t, out.ProgressRecorded)
	assert.Equal(t, 50.0, out.Score)

	sub, err := gw.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, content.SubmissionSubmitted, sub.Status)
	assert.Equal(t, []string{syncx.TypeProgressWriteFailed, syncx.TypeSubmissionGraded}, events.types())
}

func TestSubmitFinalizeFailureSurfacesRemoteBody(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	gw.FailOn(content.OpFinalizeSubmission, &content.RemoteError{
		Op: "finalize", Status: http.StatusInternalServerError, Body: `{"errors":[{"message":"boom"}]}`,
	})

	_, err := newService(gw).Submit(context.Background(), "sub-1", halfRight())
	require.Error(t, err)
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusInternalServerError, ae.Status)
	assert.Equal(t, "finalize_failed", ae.Code)
	assert.Contains(t, ae.Details, "boom")
}

func TestSubmitAnswerFailureAbortsBeforeFinalize(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	gw.FailOn(content.OpCreateAnswer, errors.New("connection reset"))

	_, err := newService(gw).Submit(context.Background(), "sub-1", halfRight())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apierr.StatusOf(err))

	sub, err := gw.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, content.SubmissionInProgress, sub.Status)
	assert.Empty(t, gw.AllProgress())
}

func TestSubmitRejectedWhileLockHeld(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	locker := lock.NewMemory(time.Minute)
	release, err := locker.Acquire(context.Background(), "submission:sub-1")
	require.NoError(t, err)
	defer release()

	_, err = newService(gw, WithLocker(locker)).Submit(context.Background(), "sub-1", halfRight())
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apierr.StatusOf(err))
	assert.Zero(t, gw.Writes())
}

func TestSaveAnswersRequiresOpenSubmission(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	svc := newService(gw)
	_, err := svc.Submit(context.Background(), "sub-1", halfRight())
	require.NoError(t, err)

	_, err = svc.SaveAnswers(context.Background(), "sub-1", halfRight())
	assert.Equal(t, http.StatusConflict, apierr.StatusOf(err))
}

func TestSaveAnswersIgnoresQuestionsOutsideAssessment(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	n, err := newService(gw).SaveAnswers(context.Background(), "sub-1", content.Responses{
		"q1":    content.SingleResponse("a"),
		"stale": content.SingleResponse("b"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	answers := gw.Answers("sub-1")
	require.Len(t, answers, 1)
	assert.Equal(t, content.ID("q1"), answers[0].Question)
	assert.False(t, answers[0].IsCorrect)
}

func TestSaveAnswersRequiresResponses(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	_, err := newService(gw).SaveAnswers(context.Background(), "sub-1", nil)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestWriteConcurrencyOption(t *testing.T) {
	gw := seed(t, 50, "sub-1")
	assert.Equal(t, 2, newService(gw, WithWriteConcurrency(2)).Answers.Limit)
	assert.Equal(t, defaultWriteConcurrency, newService(gw, WithWriteConcurrency(0)).Answers.Limit)

	out, err := newService(gw, WithWriteConcurrency(1)).Submit(context.Background(), "sub-1", halfRight())
	require.NoError(t, err)
	assert.Equal(t, 50.0, out.Score)
	assert.Len(t, gw.Answers("sub-1"), 2)
}
