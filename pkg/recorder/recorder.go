package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/auth"
	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// SystemActor is recorded when no principal is attached to the context.
const SystemActor = "sistema"

// DefaultMaxRetries bounds retries after ledger.ErrConcurrentAppend.
const DefaultMaxRetries = 3

var (
	// ErrForbidden is returned when a manual registration lacks the admin role.
	ErrForbidden = errors.New("recorder: admin role required")
	// ErrUnknownType is returned for types outside the catalogue.
	ErrUnknownType = errors.New("recorder: unknown record type")
	// ErrInvalidPayload is returned when a payload fails its schema.
	ErrInvalidPayload = errors.New("recorder: invalid payload")
)

// FailurePolicy decides what a failed append does to the domain action.
type FailurePolicy string

const (
	// FailClosed returns the append error so the caller can roll back.
	FailClosed FailurePolicy = "closed"
	// FailOpen logs and counts the failure, then reports success.
	FailOpen FailurePolicy = "open"
)

// ParseFailurePolicy maps a config value to a policy. Empty selects FailClosed.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailClosed:
		return FailClosed, nil
	case FailOpen:
		return FailOpen, nil
	default:
		return "", fmt.Errorf("unknown record failure policy %q", s)
	}
}

// Metrics counts appends dropped under FailOpen.
type Metrics interface {
	RecordDropped(ctx context.Context, recordType string)
}

type nopMetrics struct{}

func (nopMetrics) RecordDropped(context.Context, string) {}

// Recorder appends domain events to a ledger.
type Recorder struct {
	ledger     *ledger.Ledger
	schemas    *Schemas
	policy     FailurePolicy
	maxRetries int
	metrics    Metrics
	logger     *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithFailurePolicy sets the failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(r *Recorder) {
		r.policy = p
	}
}

// WithMaxRetries sets how many times a conflicting append is retried.
func WithMaxRetries(n int) Option {
	return func(r *Recorder) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithMetrics sets the drop counter.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Recorder over l.
func New(l *ledger.Ledger, opts ...Option) (*Recorder, error) {
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		ledger:     l,
		schemas:    schemas,
		policy:     FailClosed,
		maxRetries: DefaultMaxRetries,
		metrics:    nopMetrics{},
		logger:     slog.Default().With("component", "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Policy returns the configured failure policy.
func (r *Recorder) Policy() FailurePolicy {
	return r.policy
}

// Record appends an event of recordType with the context's actor, applying
// the retry and failure policies.
func (r *Recorder) Record(ctx context.Context, recordType string, payload map[string]any) error {
	actor := auth.ActorFromContext(ctx, SystemActor)
	_, err := r.appendWithRetry(ctx, recordType, actor, payload)
	if err == nil {
		return nil
	}
	if r.policy == FailOpen {
		r.logger.Error("ledger append dropped", "type", recordType, "actor", actor, "error", err)
		r.metrics.RecordDropped(ctx, recordType)
		return nil
	}
	return err
}

// Register is the admin manual registration path. It validates the type and
// payload and always returns the append error.
func (r *Recorder) Register(ctx context.Context, recordType string, payload map[string]any) (ledger.Record, error) {
	principal, err := auth.GetPrincipal(ctx)
	if err != nil || !auth.IsAdmin(principal) {
		return ledger.Record{}, ErrForbidden
	}
	recordType = strings.TrimSpace(recordType)
	if recordType == "" {
		return ledger.Record{}, fmt.Errorf("%w: type is required", ErrUnknownType)
	}
	if !KnownType(recordType) {
		return ledger.Record{}, fmt.Errorf("%w: %q", ErrUnknownType, recordType)
	}
	if err := r.schemas.Validate(recordType, payload); err != nil {
		return ledger.Record{}, err
	}
	rec, err := r.appendWithRetry(ctx, recordType, auth.ActorFromContext(ctx, SystemActor), payload)
	if err != nil {
		return ledger.Record{}, err
	}
	r.logger.Info("manual record registered", "index", rec.Index, "type", rec.Type, "actor", rec.Actor)
	return rec, nil
}

func (r *Recorder) appendWithRetry(ctx context.Context, recordType, actor string, payload map[string]any) (ledger.Record, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		rec, err := r.ledger.Append(ctx, recordType, actor, time.Time{}, payload)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		if !errors.Is(err, ledger.ErrConcurrentAppend) {
			return ledger.Record{}, err
		}
		if ctx.Err() != nil {
			return ledger.Record{}, ctx.Err()
		}
		r.logger.Debug("append conflict, retrying", "type", recordType, "attempt", attempt+1)
	}
	return ledger.Record{}, lastErr
}
