package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// Ledger semantic convention attributes.
var (
	AttrRecordType = attribute.Key("chainledger.record.type")
	AttrErrorKind  = attribute.Key("chainledger.error.kind")
	AttrValid      = attribute.Key("chainledger.verify.valid")
)

// LedgerMetrics implements ledger.Metrics and recorder.Metrics on OpenTelemetry instruments.
type LedgerMetrics struct {
	appends        metric.Int64Counter
	appendErrors   metric.Int64Counter
	verifyDuration metric.Float64Histogram
	findings       metric.Int64Counter
	dropped        metric.Int64Counter
}

// NewLedgerMetrics creates the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	m := &LedgerMetrics{}
	var err error

	if m.appends, err = meter.Int64Counter("chainledger.appends",
		metric.WithDescription("Records appended to the ledger"),
		metric.WithUnit("{record}"),
	); err != nil {
		return nil, err
	}
	if m.appendErrors, err = meter.Int64Counter("chainledger.append.errors",
		metric.WithDescription("Failed append attempts"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.verifyDuration, err = meter.Float64Histogram("chainledger.verify.duration",
		metric.WithDescription("Full-chain verification duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30),
	); err != nil {
		return nil, err
	}
	if m.findings, err = meter.Int64Counter("chainledger.verify.findings",
		metric.WithDescription("Integrity findings reported by verification"),
		metric.WithUnit("{finding}"),
	); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("chainledger.recorder.dropped",
		metric.WithDescription("Domain events dropped under the open failure policy"),
		metric.WithUnit("{record}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NopLedgerMetrics returns instruments that record nothing.
func NopLedgerMetrics() *LedgerMetrics {
	m, _ := NewLedgerMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

// RecordAppend counts an append attempt.
func (m *LedgerMetrics) RecordAppend(ctx context.Context, recordType string, err error) {
	if err == nil {
		m.appends.Add(ctx, 1, metric.WithAttributes(AttrRecordType.String(recordType)))
		return
	}
	m.appendErrors.Add(ctx, 1, metric.WithAttributes(
		AttrRecordType.String(recordType),
		AttrErrorKind.String(errorKind(err)),
	))
}

// RecordVerify records one verification run.
func (m *LedgerMetrics) RecordVerify(ctx context.Context, d time.Duration, findings int) {
	m.verifyDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrValid.Bool(findings == 0)))
	if findings > 0 {
		m.findings.Add(ctx, int64(findings))
	}
}

// RecordDropped counts a dropped domain event.
func (m *LedgerMetrics) RecordDropped(ctx context.Context, recordType string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(AttrRecordType.String(recordType)))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidRecord):
		return "invalid_record"
	case errors.Is(err, ledger.ErrPayloadSerialization):
		return "payload_serialization"
	case errors.Is(err, ledger.ErrTemporalOrdering):
		return "temporal_ordering"
	case errors.Is(err, ledger.ErrConcurrentAppend):
		return "concurrent_append"
	case errors.Is(err, ledger.ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
