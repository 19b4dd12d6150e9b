package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veridian-data/veridian/internal/shared"
)

func TestProblemCarriesTypeURN(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusNotFound, "Not Found", "no such row")

	var body ProblemDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Type != "urn:veridian:problem:not-found" {
		t.Fatalf("type = %q", body.Type)
	}
	if body.Status != http.StatusNotFound || body.Title != "Not Found" {
		t.Fatalf("body = %+v", body)
	}
}

func TestRespondErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrRoleCycle, http.StatusUnprocessableEntity},
		{shared.ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
	}
}
