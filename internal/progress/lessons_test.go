package progress

import (
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/mind-engage/mariner-lms/internal/apierr"
	"github.com/mind-engage/mariner-lms/internal/content"
)

func lessonFixture() *content.Memory {
	gw := content.NewMemory()
	gw.PutTrainee(content.Trainee{ID: "tr-1", User: "user-1"})
	gw.PutCourse(content.Course{ID: "12", Title: "Bridge Resource Management"})
	gw.PutEnrollment(content.Enrollment{ID: "en-1", Trainee: "tr-1", Course: "12", Status: content.EnrollmentActive})
	return gw
}

func newLessonService(gw *content.Memory) *LessonService {
	s := NewLessonService(gw, nil)
	s.Now = func() time.Time { return t0 }
	return s
}

func TestSetLessonCompletionTwiceKeepsOneRecord(t *testing.T) {
	gw := lessonFixture()
	s := newLessonService(gw)
	req := LessonRequest{Identity: "user-1", CourseID: "012", LessonID: "0042", Completed: true}

	for i := 0; i < 2; i++ {
		res, err := s.SetLessonCompletion(context.Background(), req)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !res.Success || !reflect.DeepEqual(res.CompletedLessons, []content.ID{"42"}) {
			t.Fatalf("call %d: unexpected result %+v", i, res)
		}
	}
	all := gw.AllProgress()
	if len(all) != 1 || !all[0].IsCompleted {
		t.Fatalf("expected one completed record, got %+v", all)
	}
	if all[0].Item != content.LessonRef("42") || all[0].Enrollment != "en-1" || all[0].Course != "12" {
		t.Fatalf("record keyed wrongly: %+v", all[0])
	}
}

func TestSetLessonCompletionWithoutEnrollment(t *testing.T) {
	gw := content.NewMemory()
	gw.PutTrainee(content.Trainee{ID: "tr-1", User: "user-1"})
	gw.PutCourse(content.Course{ID: "12"})
	gw.PutEnrollment(content.Enrollment{ID: "en-1", Trainee: "tr-1", Course: "12", Status: "dropped"})

	_, err := newLessonService(gw).SetLessonCompletion(context.Background(),
		LessonRequest{Identity: "user-1", CourseID: "12", LessonID: "1", Completed: true})
	if got := apierr.StatusOf(err); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%v)", got, err)
	}
	if len(gw.AllProgress()) != 0 {
		t.Fatal("no progress record may be created without an enrollment")
	}
}

func TestUncompleteNeverStartedLessonReturnsExistingList(t *testing.T) {
	gw := lessonFixture()
	gw.PutProgress(content.CourseItemProgress{Trainee: "tr-1", Course: "12", Item: content.LessonRef("1"), IsCompleted: true})
	s := newLessonService(gw)

	res, err := s.SetLessonCompletion(context.Background(),
		LessonRequest{Identity: "user-1", CourseID: "12", LessonID: "2", Completed: false})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.CompletedLessons, []content.ID{"1"}) {
		t.Fatalf("expected [1], got %v", res.CompletedLessons)
	}
	if gw.Writes() != 0 {
		t.Fatalf("expected no writes, got %d", gw.Writes())
	}
}

func TestUncompleteRemovesLessonFromList(t *testing.T) {
	gw := lessonFixture()
	s := newLessonService(gw)
	ctx := context.Background()
	req := LessonRequest{Identity: "user-1", CourseID: "12", LessonID: "5", Completed: true}
	if _, err := s.SetLessonCompletion(ctx, req); err != nil {
		t.Fatal(err)
	}
	req.Completed = false
	res, err := s.SetLessonCompletion(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CompletedLessons) != 0 || res.CompletedLessons == nil {
		t.Fatalf("expected an empty list, got %#v", res.CompletedLessons)
	}
}

func TestSetLessonCompletionErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    LessonRequest
		status int
		code   string
	}{
		{"no identity", LessonRequest{CourseID: "12", LessonID: "1"}, http.StatusUnauthorized, "unauthenticated"},
		{"missing lesson", LessonRequest{Identity: "user-1", CourseID: "12"}, http.StatusBadRequest, "missing_fields"},
		{"unknown learner", LessonRequest{Identity: "nobody", CourseID: "12", LessonID: "1"}, http.StatusNotFound, "trainee_not_found"},
		{"unknown course", LessonRequest{Identity: "user-1", CourseID: "99", LessonID: "1"}, http.StatusBadRequest, "invalid_course"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := lessonFixture()
			_, err := newLessonService(gw).SetLessonCompletion(context.Background(), tc.req)
			ae, ok := err.(*apierr.Error)
			if !ok {
				t.Fatalf("expected *apierr.Error, got %T (%v)", err, err)
			}
			if ae.Status != tc.status || ae.Code != tc.code {
				t.Fatalf("expected %d %s, got %d %s", tc.status, tc.code, ae.Status, ae.Code)
			}
			if gw.Writes() != 0 {
				t.Fatal("rejected requests must not write")
			}
		})
	}
}

func TestSetLessonCompletionStoreFailure(t *testing.T) {
	gw := lessonFixture()
	gw.FailOn(content.OpCreateProgress, &content.RemoteError{Op: "create progress", Status: http.StatusInternalServerError, Body: "disk full"})

	_, err := newLessonService(gw).SetLessonCompletion(context.Background(),
		LessonRequest{Identity: "user-1", CourseID: "12", LessonID: "1", Completed: true})
	ae, ok := err.(*apierr.Error)
	if !ok || ae.Status != http.StatusInternalServerError || ae.Details != "disk full" {
		t.Fatalf("expected 500 carrying the store body, got %#v", err)
	}
}

func TestCourseLookupFailureMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   int
		code   string
	}{
		{"malformed id", http.StatusBadRequest, http.StatusBadRequest, "invalid_course"},
		{"missing course", http.StatusNotFound, http.StatusBadRequest, "invalid_course"},
		{"bad service credential", http.StatusUnauthorized, http.StatusInternalServerError, "course_lookup_failed"},
		{"service forbidden", http.StatusForbidden, http.StatusInternalServerError, "course_lookup_failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := lessonFixture()
			gw.FailOn(content.OpGetCourse, &content.RemoteError{Op: "get course", Status: tc.status})
			_, err := newLessonService(gw).SetLessonCompletion(context.Background(),
				LessonRequest{Identity: "user-1", CourseID: "12", LessonID: "1", Completed: true})
			ae, ok := err.(*apierr.Error)
			if !ok {
				t.Fatalf("expected *apierr.Error, got %T (%v)", err, err)
			}
			if ae.Status != tc.want || ae.Code != tc.code {
				t.Fatalf("expected %d %s, got %d %s", tc.want, tc.code, ae.Status, ae.Code)
			}
		})
	}
}

func TestCompletedLessonsQuery(t *testing.T) {
	gw := lessonFixture()
	gw.PutProgress(content.CourseItemProgress{Trainee: "tr-1", Course: "12", Item: content.LessonRef("3"), IsCompleted: true})

	ids, err := newLessonService(gw).CompletedLessons(context.Background(), "user-1", "12")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []content.ID{"3"}) {
		t.Fatalf("expected [3], got %v", ids)
	}
}
