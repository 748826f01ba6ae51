// Package export writes self-verifying ledger bundles to an artifact store
// and verifies them offline.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/artifacts"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/canonicalize"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// FormatVersion is written into every bundle.
const FormatVersion = "1.0.0"

// SupportedVersions is the semver constraint VerifyBundle accepts.
const SupportedVersions = "^1.0"

var (
	// ErrMalformedBundle is returned when a bundle cannot be decoded.
	ErrMalformedBundle = errors.New("export: malformed bundle")
	// ErrUnsupportedVersion is returned for a format_version outside SupportedVersions.
	ErrUnsupportedVersion = errors.New("export: unsupported bundle version")
)

// Bundle is a point-in-time copy of the ledger with its verification result.
type Bundle struct {
	FormatVersion string                    `json:"format_version"`
	ExportedAt    string                    `json:"exported_at"`
	HeadHash      string                    `json:"head_hash"`
	Records       []ledger.Record           `json:"records"`
	Verification  ledger.VerificationResult `json:"verification"`
}

// Key is the artifact key for a bundle whose chain ends at head.
func Key(head string) string {
	return "ledger-" + head + ".json"
}

// Result describes a stored bundle.
type Result struct {
	Key      string
	Location string
	Bundle   Bundle
}

// Exporter snapshots a ledger into an artifact store.
type Exporter struct {
	ledger *ledger.Ledger
	store  artifacts.Store
	clock  func() time.Time
	logger *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(l *ledger.Ledger, store artifacts.Store) *Exporter {
	return &Exporter{
		ledger: l,
		store:  store,
		clock:  time.Now,
		logger: slog.Default().With("component", "export"),
	}
}

// Build assembles a bundle from one consistent snapshot.
func (e *Exporter) Build(ctx context.Context) (Bundle, error) {
	records, err := e.ledger.GetAll(ctx)
	if err != nil {
		return Bundle{}, err
	}
	res, err := ledger.VerifyRecords(ctx, records)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		FormatVersion: FormatVersion,
		ExportedAt:    ledger.FormatTimestamp(e.clock()),
		HeadHash:      res.HeadHash,
		Records:       records,
		Verification:  res,
	}, nil
}

// Export builds a bundle and stores its canonical JSON under Key(head).
// A chain with findings is still exported; the findings travel with it.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	bundle, err := e.Build(ctx)
	if err != nil {
		return Result{}, err
	}
	data, err := Encode(bundle)
	if err != nil {
		return Result{}, err
	}

	key := Key(bundle.HeadHash)
	loc, err := e.store.Store(ctx, key, data)
	if err != nil {
		return Result{}, fmt.Errorf("store bundle: %w", err)
	}

	if !bundle.Verification.Valid {
		e.logger.Warn("exported ledger has integrity findings", "key", key, "findings", len(bundle.Verification.Errors))
	}
	e.logger.Info("ledger exported", "key", key, "records", len(bundle.Records), "location", loc)
	return Result{Key: key, Location: loc, Bundle: bundle}, nil
}

// Encode serializes b as RFC 8785 canonical JSON.
func Encode(b Bundle) ([]byte, error) {
	if b.Records == nil {
		b.Records = []ledger.Record{}
	}
	return canonicalize.JCS(b)
}

// Decode parses a bundle without verifying it.
func Decode(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}
	if b.FormatVersion == "" {
		return Bundle{}, fmt.Errorf("%w: missing format_version", ErrMalformedBundle)
	}
	return b, nil
}

// Report is the outcome of an offline bundle check.
type Report struct {
	FormatVersion   string                    `json:"format_version"`
	Verification    ledger.VerificationResult `json:"verification"`
	HeadHashMatches bool                      `json:"head_hash_matches"`
	Valid           bool                      `json:"valid"`
}

// VerifyBundle checks the format version and re-verifies the bundled records.
// The stored verification section is informational and never trusted.
func VerifyBundle(ctx context.Context, data []byte) (Report, error) {
	b, err := Decode(data)
	if err != nil {
		return Report{}, err
	}

	v, err := semver.NewVersion(b.FormatVersion)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %q: %w", ErrUnsupportedVersion, b.FormatVersion, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return Report{}, err
	}
	if !constraint.Check(v) {
		return Report{}, fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, v, SupportedVersions)
	}

	res, err := ledger.VerifyRecords(ctx, b.Records)
	if err != nil {
		return Report{}, err
	}
	matches := res.HeadHash == b.HeadHash
	return Report{
		FormatVersion:   b.FormatVersion,
		Verification:    res,
		HeadHashMatches: matches,
		Valid:           res.Valid && matches,
	}, nil
}

// Load fetches a stored bundle and verifies it.
func (e *Exporter) Load(ctx context.Context, key string) (Report, error) {
	data, err := e.store.Get(ctx, key)
	if err != nil {
		return Report{}, err
	}
	return VerifyBundle(ctx, data)
}
