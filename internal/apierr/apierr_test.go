package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		err  error
		want int
	}{
		{BadRequest("missing_fields", "x"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", NotFound("nf", "x")), http.StatusNotFound},
		{Internal("downstream", cause, "body"), http.StatusInternalServerError},
		{cause, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
	if !errors.Is(Internal("downstream", cause, ""), cause) {
		t.Error("Internal must unwrap to its cause")
	}
}
