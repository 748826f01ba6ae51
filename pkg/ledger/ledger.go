package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/unicode/norm"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/canonicalize"
)

// Store is the persistence port. Save is append-only and must fail loudly;
// LoadAll returns records in ascending index order.
type Store interface {
	Save(ctx context.Context, rec Record) error
	LoadAll(ctx context.Context) ([]Record, error)
}

// TailReader is implemented by stores that can return the last record
// without loading the whole sequence.
type TailReader interface {
	Tail(ctx context.Context) (Record, bool, error)
}

// Resetter is implemented by stores that support the destructive admin reset.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler is notified after every successful append.
type Handler func(rec Record)

// Metrics receives ledger measurements. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordAppend(ctx context.Context, recordType string, err error)
	RecordVerify(ctx context.Context, d time.Duration, findings int)
}

type nopMetrics struct{}

func (nopMetrics) RecordAppend(context.Context, string, error) {}
func (nopMetrics) RecordVerify(context.Context, time.Duration, int) {}

type verification struct {
	result VerificationResult
	at     time.Time
}

// Ledger maintains the ordered, tamper-evident record sequence.
type Ledger struct {
	mu     sync.RWMutex
	store  Store
	tail   *Record
	policy TimestampPolicy
	clock  func() time.Time

	verified *expirable.LRU[string, verification]

	handlerMu sync.RWMutex
	handlers  []Handler

	metrics Metrics
	logger  *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used for zero timestamps and verification times.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithTimestampPolicy sets the out-of-order timestamp policy. Default: reject.
func WithTimestampPolicy(p TimestampPolicy) Option {
	return func(l *Ledger) {
		l.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(l *Ledger) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithVerificationCache keeps up to size verification results keyed by head
// for maxAge. Statistics reuses a cached result for the current head; a
// maxAge of zero disables the cache and every Statistics call re-verifies.
func WithVerificationCache(size int, maxAge time.Duration) Option {
	return func(l *Ledger) {
		if size <= 0 || maxAge <= 0 {
			l.verified = nil
			return
		}
		l.verified = expirable.NewLRU[string, verification](size, nil, maxAge)
	}
}

// New creates a Ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		policy:   TimestampReject,
		clock:    time.Now,
		verified: expirable.NewLRU[string, verification](64, nil, 30*time.Second),
		metrics:  nopMetrics{},
		logger:   slog.Default().With("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers a handler called after each successful append.
func (l *Ledger) Subscribe(h Handler) {
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Append creates, hashes and persists a new record at the tail.
// A zero ts means now.
func (l *Ledger) Append(ctx context.Context, recordType, actor string, ts time.Time, payload map[string]any) (Record, error) {
	rec, err := l.append(ctx, recordType, actor, ts, payload)
	l.metrics.RecordAppend(ctx, recordType, err)
	if err != nil {
		if errors.Is(err, ErrStorage) {
			l.logger.Error("append failed", "type", recordType, "error", err)
		}
		return Record{}, err
	}

	l.logger.Debug("record appended", "index", rec.Index, "type", rec.Type, "hash", rec.CurrentHash)

	l.handlerMu.RLock()
	handlers := l.handlers
	l.handlerMu.RUnlock()
	for _, h := range handlers {
		h(rec.Clone())
	}
	return rec.Clone(), nil
}

func (l *Ledger) append(ctx context.Context, recordType, actor string, ts time.Time, payload map[string]any) (Record, error) {
	recordType = normalizeField(recordType)
	actor = normalizeField(actor)
	if recordType == "" {
		return Record{}, fmt.Errorf("%w: type is required", ErrInvalidRecord)
	}
	if actor == "" {
		return Record{}, fmt.Errorf("%w: actor is required", ErrInvalidRecord)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	canonical, err := canonicalize.JCS(payload)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrPayloadSerialization, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Stamped under the lock so concurrent writers are stamped in append order.
	if ts.IsZero() {
		ts = l.clock()
	}
	ts = NormalizeTimestamp(ts)

	tail, err := l.loadTail(ctx)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		Index:        0,
		Type:         recordType,
		Actor:        actor,
		Timestamp:    ts,
		Payload:      json.RawMessage(canonical),
		PreviousHash: Genesis,
	}
	if tail != nil {
		rec.Index = tail.Index + 1
		rec.PreviousHash = tail.CurrentHash
		if ts.Before(tail.Timestamp) {
			switch l.policy {
			case TimestampClamp:
				rec.Timestamp = tail.Timestamp
			case TimestampAllow:
			default:
				return Record{}, fmt.Errorf("%w: %s is before %s", ErrTemporalOrdering,
					FormatTimestamp(ts), FormatTimestamp(tail.Timestamp))
			}
		}
	}

	rec.CurrentHash, err = ComputeHash(rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrPayloadSerialization, err)
	}

	if err := l.store.Save(ctx, rec); err != nil {
		// The store may have been extended by another writer; re-read the tail next time.
		l.tail = nil
		if errors.Is(err, ErrConcurrentAppend) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	l.tail = &rec
	return rec, nil
}

// loadTail returns the cached tail or reads it from the store. Caller holds l.mu.
func (l *Ledger) loadTail(ctx context.Context) (*Record, error) {
	if l.tail != nil {
		return l.tail, nil
	}

	if tr, ok := l.store.(TailReader); ok {
		rec, found, err := tr.Tail(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		if !found {
			return nil, nil
		}
		l.tail = &rec
		return l.tail, nil
	}

	records, err := l.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	last := records[len(records)-1]
	l.tail = &last
	return l.tail, nil
}

// GetAll returns every record in ascending index order.
func (l *Ledger) GetAll(ctx context.Context) ([]Record, error) {
	records, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out, nil
}

// Get returns the record with the given index.
func (l *Ledger) Get(ctx context.Context, index int64) (Record, error) {
	records, err := l.snapshot(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.Index == index {
			return r.Clone(), nil
		}
	}
	return Record{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
}

// Head returns the current_hash of the tail, or Genesis for an empty ledger.
func (l *Ledger) Head(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail, err := l.loadTail(ctx)
	if err != nil {
		return "", err
	}
	if tail == nil {
		return Genesis, nil
	}
	return tail.CurrentHash, nil
}

// Reset truncates the underlying store when it supports it.
func (l *Ledger) Reset(ctx context.Context) error {
	r, ok := l.store.(Resetter)
	if !ok {
		return fmt.Errorf("%w: store does not support reset", ErrStorage)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := r.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	l.tail = nil
	if l.verified != nil {
		l.verified.Purge()
	}
	l.logger.Warn("ledger reset")
	return nil
}

// snapshot loads the sequence under a read lock so no in-process append is half visible.
func (l *Ledger) snapshot(ctx context.Context) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records, err := l.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return records, nil
}

func normalizeField(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
