// Package server assembles the ledger HTTP API: routes plus the
// request-id, CORS, auth and rate-limit middleware chain.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/limiter"
)

// Instrumenter wraps a route handler with tracing and metrics.
type Instrumenter interface {
	HTTPMiddleware(route string, next http.Handler) http.Handler
}

// Options configures the handler chain.
type Options struct {
	Service     *LedgerService
	Validator   *auth.JWTValidator
	APIKeys     *auth.APIKeyStore
	Limiter     limiter.Store
	RateLimit   limiter.Policy
	CORSOrigins []string
	Telemetry   Instrumenter
}

// Routes registers the ledger routes on mux.
func Routes(mux *http.ServeMux, svc *LedgerService, telemetry Instrumenter) {
	handle := func(pattern string, h http.HandlerFunc) {
		var handler http.Handler = h
		if telemetry != nil {
			handler = telemetry.HTTPMiddleware(pattern, handler)
		}
		mux.Handle(pattern, handler)
	}

	handle("GET /health", HandleHealth)
	handle("GET /api/v1/ledger/records", svc.HandleList)
	handle("POST /api/v1/ledger/records", svc.HandleRegister)
	handle("GET /api/v1/ledger/records/{index}", svc.HandleGet)
	handle("GET /api/v1/ledger/verify", svc.HandleVerify)
	handle("GET /api/v1/ledger/stats", svc.HandleStats)
	handle("GET /api/v1/ledger/types", svc.HandleTypes)
}

// NewHandler returns the routed mux wrapped in request ID, CORS, auth and
// rate limiting, outermost first. A nil Limiter disables rate limiting.
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()
	Routes(mux, opts.Service, opts.Telemetry)

	var h http.Handler = mux
	if opts.Limiter != nil {
		h = auth.RateLimitMiddleware(opts.Limiter, opts.RateLimit)(h)
	}
	h = auth.NewMiddleware(opts.Validator, opts.APIKeys)(h)
	h = auth.CORSMiddleware(opts.CORSOrigins)(h)
	return auth.RequestIDMiddleware(h)
}

// ListenAndServe runs h on addr until ctx is done, then drains in-flight
// requests for up to shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, shutdownTimeout time.Duration) error {
	logger := slog.Default().With("component", "server")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
