package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/artifacts"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/config"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/observability"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/store"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg       *config.Config
	backend   store.Backend
	ledger    *ledger.Ledger
	telemetry *observability.Provider
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "Path to a YAML config file")
	return fs, path
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openApp loads config, sets up logging and telemetry, and opens the store.
// Logs go to logOut so command output on stdout stays machine-readable.
func openApp(ctx context.Context, configPath string, logOut io.Writer, withTelemetry bool) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg, logOut)

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = Version
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obsCfg.Enabled = withTelemetry && cfg.OTelEnabled
	obsCfg.Insecure = true
	telemetry, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, err
	}

	policy, err := ledger.ParseTimestampPolicy(cfg.TimestampPolicy)
	if err != nil {
		return nil, err
	}

	backend, err := store.Open(ctx, store.Options{
		Driver:      strings.ToLower(cfg.StoreDriver),
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		FilePath:    cfg.FileStorePath,
		PebblePath:  cfg.PebblePath,
	})
	if err != nil {
		_ = telemetry.Shutdown(ctx)
		return nil, err
	}

	l := ledger.New(backend,
		ledger.WithTimestampPolicy(policy),
		ledger.WithMetrics(telemetry.Ledger()),
		ledger.WithVerificationCache(cfg.VerifyCacheSize, cfg.StatsMaxAge),
	)

	return &app{cfg: cfg, backend: backend, ledger: l, telemetry: telemetry}, nil
}

func (a *app) artifactStore(ctx context.Context) (artifacts.Store, error) {
	return artifacts.NewStore(ctx, artifacts.Config{
		Type:     artifacts.StoreType(strings.ToLower(a.cfg.ExportDriver)),
		Path:     a.cfg.ExportPath,
		Bucket:   a.cfg.ExportBucket,
		Region:   a.cfg.ExportRegion,
		Endpoint: a.cfg.ExportEndpoint,
		Prefix:   a.cfg.ExportPrefix,
	})
}

func (a *app) Close(ctx context.Context) {
	if err := a.backend.Close(); err != nil {
		slog.Error("close store", "error", err)
	}
	_ = a.telemetry.Shutdown(ctx)
}
