package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
)

const testSecret = "test-secret-please-rotate"

func okHandler(captured *auth.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			p, _ := auth.GetPrincipal(r.Context())
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func failHandler(t *testing.T, msg string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error(msg)
	})
}

func TestMiddleware_ValidJWT(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret)
	token, err := validator.Issue("user-123", "admin@example.com", []string{auth.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var captured auth.Principal
	handler := auth.NewMiddleware(validator, nil)(okHandler(&captured))

	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if captured == nil {
		t.Fatal("principal was not set in context")
	}
	if captured.GetID() != "user-123" {
		t.Errorf("expected subject 'user-123', got %q", captured.GetID())
	}
	if captured.GetEmail() != "admin@example.com" {
		t.Errorf("expected email, got %q", captured.GetEmail())
	}
	if !auth.IsAdmin(captured) {
		t.Error("expected admin role")
	}
}

func TestMiddleware_ExpiredJWT(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret)
	token, err := validator.Issue("user-123", "a@example.com", nil, -time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	handler := auth.NewMiddleware(validator, nil)(failHandler(t, "handler should not be called for expired token"))
	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_InvalidSignature(t *testing.T) {
	other := auth.NewJWTValidator("another-secret")
	token, err := other.Issue("user-123", "a@example.com", []string{auth.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	handler := auth.NewMiddleware(auth.NewJWTValidator(testSecret), nil)(failHandler(t, "handler should not be called for invalid signature"))
	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{auth.RoleAdmin},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	handler := auth.NewMiddleware(auth.NewJWTValidator(testSecret), nil)(failHandler(t, "handler should not be called for alg=none"))
	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	handler := auth.NewMiddleware(auth.NewJWTValidator(testSecret), nil)(failHandler(t, "handler should not be called without auth header"))

	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json, got %q", ct)
	}
}

func TestMiddleware_MissingSubjectClaim(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret)
	token, err := validator.Issue("", "a@example.com", nil, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	handler := auth.NewMiddleware(validator, nil)(failHandler(t, "handler should not be called for missing subject claim"))
	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_PublicPathsBypass(t *testing.T) {
	called := false
	handler := auth.NewMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called for public paths without auth")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestMiddleware_NothingConfigured_FailClosed(t *testing.T) {
	if auth.NewJWTValidator("") != nil {
		t.Fatal("empty secret should yield a nil validator")
	}
	handler := auth.NewMiddleware(nil, nil)(failHandler(t, "handler should not be called when auth is not configured"))

	for _, hdr := range []struct{ name, value string }{
		{"Authorization", "Bearer some-token"},
		{"X-API-Key", "svc.secret"},
	} {
		req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
		req.Header.Set(hdr.name, hdr.value)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", hdr.name, w.Code)
		}
	}
}

func TestMiddleware_APIKey(t *testing.T) {
	hash, err := auth.HashAPIKeySecret("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	keys, err := auth.NewAPIKeyStore([]auth.APIKey{
		{ID: "inventario", Email: "svc@example.com", Roles: []string{auth.RoleAdmin}, Hash: hash},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	var captured auth.Principal
	handler := auth.NewMiddleware(nil, keys)(okHandler(&captured))

	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("X-API-Key", "inventario.s3cret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if captured == nil || captured.GetEmail() != "svc@example.com" {
		t.Fatalf("unexpected principal %+v", captured)
	}

	for _, bad := range []string{"inventario.wrong", "unknown.s3cret", "no-separator", ".s3cret"} {
		req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
		req.Header.Set("X-API-Key", bad)
		w := httptest.NewRecorder()
		auth.NewMiddleware(nil, keys)(failHandler(t, "handler should not be called for bad key "+bad)).ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%q: expected 401, got %d", bad, w.Code)
		}
	}
}

func TestLoadAPIKeys(t *testing.T) {
	hash, err := auth.HashAPIKeySecret("abc")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys.yaml")
	content := "keys:\n  - id: reporting\n    email: reports@example.com\n    roles: [externo]\n    hash: \"" + hash + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	keys, err := auth.LoadAPIKeys(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if keys.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", keys.Len())
	}
	p, err := keys.Authenticate("reporting.abc")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.IsAdmin(p) {
		t.Error("external key must not be admin")
	}
}

func TestNewAPIKeyStore_RejectsDuplicates(t *testing.T) {
	_, err := auth.NewAPIKeyStore([]auth.APIKey{
		{ID: "a", Hash: "x"},
		{ID: "a", Hash: "y"},
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	_, err = auth.NewAPIKeyStore([]auth.APIKey{{ID: "a.b", Hash: "x"}})
	if err == nil {
		t.Fatal("expected error for id containing '.'")
	}
}

func TestActorFromContext(t *testing.T) {
	if got := auth.ActorFromContext(context.Background(), "sistema"); got != "sistema" {
		t.Errorf("expected fallback, got %q", got)
	}
	ctx := auth.WithPrincipal(context.Background(), &auth.BasePrincipal{ID: "u1", Email: "ana@example.com"})
	if got := auth.ActorFromContext(ctx, "sistema"); got != "ana@example.com" {
		t.Errorf("expected email, got %q", got)
	}
	ctx = auth.WithPrincipal(context.Background(), &auth.BasePrincipal{ID: "u1"})
	if got := auth.ActorFromContext(ctx, "sistema"); got != "u1" {
		t.Errorf("expected id, got %q", got)
	}
}

func TestGetRequestID_ExtractsFromContext(t *testing.T) {
	var got string
	handler := auth.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got == "" {
		t.Fatal("expected non-empty request id from context")
	}
	if w.Header().Get("X-Request-ID") != got {
		t.Fatal("expected X-Request-ID header to match context")
	}

	req = httptest.NewRequest("GET", "/api/v1/ledger/records", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got != "client-supplied" {
		t.Errorf("expected client id to be reused, got %q", got)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := auth.CORSMiddleware([]string{"https://app.example.com"})(okHandler(nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ledger/records", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Error("expected allowed origin to be echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ledger/records", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unexpected allow-origin for foreign origin")
	}
}
