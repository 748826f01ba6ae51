package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/limiter"
)

func TestRateLimitMiddleware_UnderLimit(t *testing.T) {
	middleware := auth.RateLimitMiddleware(limiter.NewInMemoryStore(), limiter.Policy{RPM: 60, Burst: 10})

	called := false
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when under rate limit")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRateLimitMiddleware_OverLimit(t *testing.T) {
	// Very strict: 1 RPM, burst of 1
	middleware := auth.RateLimitMiddleware(limiter.NewInMemoryStore(), limiter.Policy{RPM: 1, Burst: 1})
	handler := middleware(okHandler(nil))

	req1 := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Errorf("first request: expected 200, got %d", w1.Code)
	}

	req2 := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", w2.Code)
	}
	if ra := w2.Header().Get("Retry-After"); ra != "60" {
		t.Errorf("expected Retry-After 60, got %q", ra)
	}
}

func TestRateLimitMiddleware_PerPrincipal(t *testing.T) {
	middleware := auth.RateLimitMiddleware(limiter.NewInMemoryStore(), limiter.Policy{RPM: 1, Burst: 1})
	handler := middleware(okHandler(nil))

	for _, id := range []string{"alice", "bob"} {
		req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.BasePrincipal{ID: id}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", id, w.Code)
		}
	}
}

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, limiter.Policy, int) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	handler := auth.RateLimitMiddleware(brokenStore{}, limiter.Policy{RPM: 1, Burst: 1})(okHandler(nil))

	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when limiter errors, got %d", w.Code)
	}
}
