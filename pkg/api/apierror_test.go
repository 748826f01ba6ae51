package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/api"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) api.ProblemDetail {
	t.Helper()
	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return problem
}

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, nil, http.StatusBadRequest, "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	problem := decode(t, w)
	if problem.Status != 400 {
		t.Errorf("expected problem.status=400, got %d", problem.Status)
	}
	if problem.Title != "Bad Request" {
		t.Errorf("expected title 'Bad Request', got %q", problem.Title)
	}
	if problem.Type != "https://chainledger.local/errors/400" {
		t.Errorf("unexpected type %q", problem.Type)
	}
	if problem.Instance != "" {
		t.Errorf("expected no instance without a request, got %q", problem.Instance)
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		title  string
		detail string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) { api.WriteBadRequest(w, r, "limit must be an integer") },
			http.StatusBadRequest, "Bad Request", "limit must be an integer"},
		{"unauthorized default", func(w http.ResponseWriter, r *http.Request) { api.WriteUnauthorized(w, r, "") },
			http.StatusUnauthorized, "Unauthorized", "Authentication required"},
		{"forbidden default", func(w http.ResponseWriter, r *http.Request) { api.WriteForbidden(w, r, "") },
			http.StatusForbidden, "Forbidden", "Insufficient permissions"},
		{"not found", func(w http.ResponseWriter, r *http.Request) { api.WriteNotFound(w, r, "index 9") },
			http.StatusNotFound, "Not Found", "index 9"},
		{"conflict", func(w http.ResponseWriter, r *http.Request) { api.WriteConflict(w, r, "tail moved") },
			http.StatusConflict, "Conflict", "tail moved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/records/9", nil)
			w := httptest.NewRecorder()
			w.Header().Set("X-Request-ID", "req-123")
			tt.write(w, req)

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			problem := decode(t, w)
			if problem.Title != tt.title || problem.Detail != tt.detail {
				t.Errorf("got title %q detail %q", problem.Title, problem.Detail)
			}
			if problem.Instance != "/api/v1/ledger/records/9" {
				t.Errorf("expected instance from request path, got %q", problem.Instance)
			}
			if problem.TraceID != "req-123" {
				t.Errorf("expected trace_id req-123, got %q", problem.TraceID)
			}
		})
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, nil, errors.New("pq: connection refused to host=10.0.0.1"))

	problem := decode(t, w)
	if strings.Contains(problem.Detail, "10.0.0.1") {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, nil, 30)

	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("expected Retry-After '30', got %q", ra)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}
