package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mind-engage/mariner-lms/internal/rbac"
)

func TestJWTMiddlewareSetsSubjectAndRole(t *testing.T) {
	a := NewAuthService("s3cret", "mariner")
	tok, err := a.IssueJWT("user-1", "trainee", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	var gotSub, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotSub != "user-1" || gotRole != "trainee" {
		t.Fatalf("unexpected context: sub=%q role=%q", gotSub, gotRole)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := NewAuthService("s3cret", "mariner")
	expired, _ := a.IssueJWT("user-1", "trainee", -time.Minute)
	foreign, _ := NewAuthService("other", "mariner").IssueJWT("user-1", "trainee", time.Minute)
	wrongIssuer, _ := NewAuthService("s3cret", "elsewhere").IssueJWT("user-1", "trainee", time.Minute)

	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	for name, header := range map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"expired":      "Bearer " + expired,
		"bad sig":      "Bearer " + foreign,
		"wrong issuer": "Bearer " + wrongIssuer,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}
