package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/config"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/limiter"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/query"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/recorder"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/server"
)

const shutdownTimeout = 15 * time.Second

// runServeCmd implements `chainledger serve`. It runs until SIGINT or SIGTERM.
func runServeCmd(args []string, _ io.Writer, stderr io.Writer) int {
	fs, configPath := newFlagSet("serve", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *configPath, os.Stderr, true)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.Close(context.Background())

	handler, closeFn, err := buildHandler(ctx, a)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeFn()

	if err := server.ListenAndServe(ctx, ":"+a.cfg.Port, handler, shutdownTimeout); err != nil {
		slog.Error("server failed", "error", err)
		return 2
	}
	return 0
}

// buildHandler wires the recorder, query engine, auth and rate limiter around a.
func buildHandler(ctx context.Context, a *app) (h http.Handler, closeFn func(), err error) {
	logger := slog.Default().With("component", "serve")
	closeFn = func() {}

	policy, err := recorder.ParseFailurePolicy(a.cfg.RecordFailurePolicy)
	if err != nil {
		return nil, closeFn, err
	}
	rec, err := recorder.New(a.ledger,
		recorder.WithFailurePolicy(policy),
		recorder.WithMetrics(a.telemetry.Ledger()),
	)
	if err != nil {
		return nil, closeFn, err
	}
	engine, err := query.NewEngine(a.cfg.VerifyCacheSize)
	if err != nil {
		return nil, closeFn, err
	}

	a.ledger.Subscribe(func(r ledger.Record) {
		logger.Debug("record appended", "index", r.Index, "type", r.Type, "actor", r.Actor)
	})

	validator := auth.NewJWTValidator(a.cfg.JWTSecret)
	var keys *auth.APIKeyStore
	if a.cfg.APIKeysFile != "" {
		if keys, err = auth.LoadAPIKeys(a.cfg.APIKeysFile); err != nil {
			return nil, closeFn, err
		}
	}
	if validator == nil && keys == nil {
		logger.Warn("no JWT_SECRET or API_KEYS_FILE configured; every ledger route will return 401")
	}

	limitStore, closeFn, err := openLimiter(ctx, a.cfg)
	if err != nil {
		return nil, closeFn, err
	}

	return server.NewHandler(server.Options{
		Service:     server.NewLedgerService(a.ledger, rec, engine),
		Validator:   validator,
		APIKeys:     keys,
		Limiter:     limitStore,
		RateLimit:   limiter.Policy{RPM: a.cfg.RateLimitRPM, Burst: a.cfg.RateLimitBurst},
		CORSOrigins: a.cfg.CORSOrigins,
		Telemetry:   a.telemetry,
	}), closeFn, nil
}

// openLimiter returns the Redis limiter when REDIS_URL is set and reachable,
// the in-memory limiter otherwise, or nil when RATE_LIMIT_RPM is 0.
func openLimiter(ctx context.Context, cfg *config.Config) (limiter.Store, func(), error) {
	noop := func() {}
	if cfg.RateLimitRPM == 0 {
		return nil, noop, nil
	}
	if cfg.RedisURL == "" {
		return limiter.NewInMemoryStore(), noop, nil
	}

	rs, err := limiter.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		slog.Warn("redis unavailable, using in-memory rate limiter", "error", err)
		_ = rs.Close()
		return limiter.NewInMemoryStore(), noop, nil
	}
	return rs, func() { _ = rs.Close() }, nil
}
