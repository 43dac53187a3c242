package contenthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mind-engage/mariner-lms/internal/content"
)

const (
	colAssessments  = "assessments"
	colSubmissions  = "submissions"
	colAnswers      = "submission-answers"
	colProgress     = "course-item-progress"
	colTrainees     = "trainees"
	colCourses      = "courses"
	colEnrollments  = "course-enrollments"
	pageSize        = 100
	maxPages        = 50
	assessmentDepth = 2
)

var _ content.Gateway = (*Client)(nil)

type docEnvelope[T any] struct {
	Doc T `json:"doc"`
}

type page[T any] struct {
	Docs        []T  `json:"docs"`
	HasNextPage bool `json:"hasNextPage"`
	NextPage    *int `json:"nextPage"`
}

// bulkResult is the answer to a PATCH against a where clause.
type bulkResult[T any] struct {
	Docs   []T               `json:"docs"`
	Errors []json.RawMessage `json:"errors"`
}

type where url.Values

func newWhere() where { return where(url.Values{}) }

func (w where) eq(field string, v any) where {
	url.Values(w).Set("where["+field+"][equals]", fmt.Sprint(v))
	return w
}

func (w where) values(depth int) url.Values {
	q := url.Values(w)
	q.Set("depth", strconv.Itoa(depth))
	return q
}

func docPath(col string, id content.ID) string {
	return "/api/" + col + "/" + url.PathEscape(id.String())
}

func getDoc[T any](ctx context.Context, c *Client, op, col string, id content.ID, depth int) (T, error) {
	var out T
	q := url.Values{}
	q.Set("depth", strconv.Itoa(depth))
	err := c.do(ctx, call{op: op, method: http.MethodGet, path: docPath(col, id), query: q, retry: true}, &out)
	return out, err
}

// listAll follows pagination until the store reports no further page.
func listAll[T any](ctx context.Context, c *Client, op, col string, w where) ([]T, error) {
	var out []T
	q := w.values(0)
	q.Set("limit", strconv.Itoa(pageSize))
	for p := 1; p <= maxPages; p++ {
		q.Set("page", strconv.Itoa(p))
		var pg page[T]
		if err := c.do(ctx, call{op: op, method: http.MethodGet, path: "/api/" + col, query: q, retry: true}, &pg); err != nil {
			return nil, err
		}
		out = append(out, pg.Docs...)
		if !pg.HasNextPage {
			return out, nil
		}
		if pg.NextPage != nil && *pg.NextPage > p {
			p = *pg.NextPage - 1
		}
	}
	return nil, fmt.Errorf("%s: more than %d pages", op, maxPages)
}

func findFirst[T any](ctx context.Context, c *Client, op, col string, w where) (T, error) {
	var zero T
	q := w.values(0)
	q.Set("limit", "1")
	var pg page[T]
	if err := c.do(ctx, call{op: op, method: http.MethodGet, path: "/api/" + col, query: q, retry: true}, &pg); err != nil {
		return zero, err
	}
	if len(pg.Docs) == 0 {
		return zero, content.ErrNotFound
	}
	return pg.Docs[0], nil
}

func create[T any](ctx context.Context, c *Client, op, col string, body any) (T, error) {
	var env docEnvelope[T]
	err := c.do(ctx, call{op: op, method: http.MethodPost, path: "/api/" + col, query: url.Values{"depth": {"0"}}, body: body}, &env)
	return env.Doc, err
}

func update[T any](ctx context.Context, c *Client, op, col string, id content.ID, body any) (T, error) {
	var env docEnvelope[T]
	err := c.do(ctx, call{op: op, method: http.MethodPatch, path: docPath(col, id), query: url.Values{"depth": {"0"}}, body: body, retry: true}, &env)
	return env.Doc, err
}

func (c *Client) GetAssessment(ctx context.Context, id content.ID) (content.Assessment, error) {
	return getDoc[content.Assessment](ctx, c, "get assessment", colAssessments, id, assessmentDepth)
}

func (c *Client) GetSubmission(ctx context.Context, id content.ID) (content.Submission, error) {
	return getDoc[content.Submission](ctx, c, "get submission", colSubmissions, id, 0)
}

type finalizeBody struct {
	Status         content.SubmissionStatus `json:"status"`
	Score          float64                  `json:"score"`
	PointsEarned   float64                  `json:"pointsEarned"`
	PointsPossible float64                  `json:"pointsPossible"`
	CompletedAt    time.Time                `json:"completedAt"`
}

// FinalizeSubmission patches through a where clause on status, so the store
// only applies it while the submission is still in progress. It is never
// retried: a lost response would come back as a false conflict.
func (c *Client) FinalizeSubmission(ctx context.Context, id content.ID, res content.SubmissionResult) (content.Submission, error) {
	q := newWhere().eq("id", id).eq("status", content.SubmissionInProgress).values(0)
	body := finalizeBody{
		Status:         content.SubmissionSubmitted,
		Score:          res.Score,
		PointsEarned:   res.PointsEarned,
		PointsPossible: res.PointsPossible,
		CompletedAt:    res.CompletedAt.UTC(),
	}
	var out bulkResult[content.Submission]
	if err := c.do(ctx, call{op: "finalize submission", method: http.MethodPatch, path: "/api/" + colSubmissions, query: q, body: body}, &out); err != nil {
		return content.Submission{}, err
	}
	if len(out.Errors) > 0 {
		return content.Submission{}, &content.RemoteError{Op: "finalize submission", Status: http.StatusBadRequest, Body: string(out.Errors[0])}
	}
	if len(out.Docs) == 0 {
		return content.Submission{}, content.ErrConflict
	}
	return out.Docs[0], nil
}

func (c *Client) ListSubmissionAnswers(ctx context.Context, submission content.ID) ([]content.SubmissionAnswer, error) {
	return listAll[content.SubmissionAnswer](ctx, c, "list submission answers", colAnswers, newWhere().eq("submission", submission))
}

func (c *Client) CreateSubmissionAnswer(ctx context.Context, a content.SubmissionAnswer) (content.SubmissionAnswer, error) {
	a.ID = ""
	return create[content.SubmissionAnswer](ctx, c, "create submission answer", colAnswers, a)
}

func (c *Client) UpdateSubmissionAnswer(ctx context.Context, id content.ID, a content.SubmissionAnswer) (content.SubmissionAnswer, error) {
	a.ID = ""
	return update[content.SubmissionAnswer](ctx, c, "update submission answer", colAnswers, id, a)
}

func progressWhere(trainee, course content.ID) where {
	return newWhere().eq("trainee", trainee).eq("course", course)
}

// FindProgress queries on both halves of the item reference and re-checks the
// match locally.
func (c *Client) FindProgress(ctx context.Context, key content.ProgressKey) (content.CourseItemProgress, error) {
	w := progressWhere(key.Trainee, key.Course).
		eq("item.relationTo", key.Item.Kind.Collection()).
		eq("item.value", key.Item.ID)
	found, err := listAll[content.CourseItemProgress](ctx, c, "find progress", colProgress, w)
	if err != nil {
		return content.CourseItemProgress{}, err
	}
	for _, p := range found {
		if key.Matches(p) {
			return p, nil
		}
	}
	return content.CourseItemProgress{}, content.ErrNotFound
}

func (c *Client) CreateProgress(ctx context.Context, p content.CourseItemProgress) (content.CourseItemProgress, error) {
	p.ID = ""
	return create[content.CourseItemProgress](ctx, c, "create progress", colProgress, p)
}

func (c *Client) UpdateProgress(ctx context.Context, id content.ID, p content.CourseItemProgress) (content.CourseItemProgress, error) {
	p.ID = ""
	return update[content.CourseItemProgress](ctx, c, "update progress", colProgress, id, p)
}

func (c *Client) ListProgress(ctx context.Context, f content.ProgressFilter) ([]content.CourseItemProgress, error) {
	w := progressWhere(f.Trainee, f.Course)
	if f.Kind != 0 {
		w = w.eq("item.relationTo", f.Kind.Collection())
	}
	if f.CompletedOnly {
		w = w.eq("isCompleted", true)
	}
	all, err := listAll[content.CourseItemProgress](ctx, c, "list progress", colProgress, w)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Client) FindTraineeByUser(ctx context.Context, user content.ID) (content.Trainee, error) {
	return findFirst[content.Trainee](ctx, c, "find trainee", colTrainees, newWhere().eq("user", user))
}

func (c *Client) GetCourse(ctx context.Context, id content.ID) (content.Course, error) {
	return getDoc[content.Course](ctx, c, "get course", colCourses, id, 0)
}

func (c *Client) FindActiveEnrollment(ctx context.Context, trainee, course content.ID) (content.Enrollment, error) {
	w := newWhere().eq("trainee", trainee).eq("course", course).eq("status", content.EnrollmentActive)
	return findFirst[content.Enrollment](ctx, c, "find enrollment", colEnrollments, w)
}

// Ping checks the store answers authenticated reads.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"limit": {"1"}, "depth": {"0"}}
	return c.do(ctx, call{op: "ping", method: http.MethodGet, path: "/api/" + colCourses, query: q}, nil)
}
