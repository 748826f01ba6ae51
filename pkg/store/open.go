package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

// Backend is a ledger store that holds resources.
type Backend interface {
	ledger.Store
	Close() error
}

// Options selects and locates a backend.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	FilePath    string
	PebblePath  string
}

// Open returns the backend named by opts.Driver. A non-empty DatabaseURL with
// an empty driver selects Postgres.
func Open(ctx context.Context, opts Options) (Backend, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
		if opts.DatabaseURL != "" {
			driver = DriverPostgres
		}
	}

	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(opts.FilePath)
	case DriverSQLite:
		if err := ensureDir(opts.SQLitePath); err != nil {
			return nil, err
		}
		return OpenSQLite(ctx, opts.SQLitePath)
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		return OpenPostgres(ctx, opts.DatabaseURL)
	case DriverPebble:
		return OpenPebble(opts.PebblePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
