// Package query filters and pages ledger records with CEL expressions over
// the variable record.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

var (
	// ErrInvalidFilter is returned for expressions that do not compile to a bool.
	ErrInvalidFilter = errors.New("query: invalid filter")
	// ErrInvalidPaging is returned for negative limit or offset.
	ErrInvalidPaging = errors.New("query: invalid paging")
)

// DefaultLimit applies when Options.Limit is zero. MaxLimit caps it.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Options selects a page of records.
type Options struct {
	Type   string
	Filter string
	Limit  int
	Offset int
}

// Page is one slice of the matching records plus the total match count.
type Page struct {
	Records []ledger.Record `json:"records"`
	Total   int             `json:"total"`
}

// Engine compiles filters once and caches the programs.
type Engine struct {
	env   *cel.Env
	cache *lru.Cache[string, cel.Program]
}

// NewEngine creates an engine caching up to cacheSize programs.
func NewEngine(cacheSize int) (*Engine, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	cache, err := lru.New[string, cel.Program](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{env: env, cache: cache}, nil
}

// Compile returns the cached program for expr, compiling it on a miss.
func (e *Engine) Compile(expr string) (cel.Program, error) {
	if prg, ok := e.cache.Get(expr); ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression yields %s, want bool", ErrInvalidFilter, out)
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	e.cache.Add(expr, prg)
	return prg, nil
}

// Match evaluates prg against rec. Evaluation errors, such as a missing
// payload key, count as no match.
func Match(ctx context.Context, prg cel.Program, rec ledger.Record) bool {
	activation, err := activationFor(rec)
	if err != nil {
		return false
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{"record": activation})
	if err != nil {
		return false
	}
	val, ok := out.Value().(bool)
	return ok && val
}

// Apply filters records (already in index order) and returns the requested page.
func (e *Engine) Apply(ctx context.Context, records []ledger.Record, opts Options) (Page, error) {
	var prg cel.Program
	if f := strings.TrimSpace(opts.Filter); f != "" {
		var err error
		if prg, err = e.Compile(f); err != nil {
			return Page{}, err
		}
	}
	limit, offset, err := normalizePaging(opts.Limit, opts.Offset)
	if err != nil {
		return Page{}, err
	}
	recordType := strings.TrimSpace(opts.Type)

	matched := make([]ledger.Record, 0)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		if recordType != "" && rec.Type != recordType {
			continue
		}
		if prg != nil && !Match(ctx, prg, rec) {
			continue
		}
		matched = append(matched, rec)
	}

	page := Page{Records: []ledger.Record{}, Total: len(matched)}
	if offset < len(matched) {
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Records = matched[offset:end]
	}
	return page, nil
}

func normalizePaging(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidPaging)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, offset, nil
}

func activationFor(rec ledger.Record) (map[string]any, error) {
	payload, err := rec.PayloadMap()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"index":         rec.Index,
		"type":          rec.Type,
		"actor":         rec.Actor,
		"timestamp":     rec.Timestamp,
		"payload":       payload,
		"previous_hash": rec.PreviousHash,
		"current_hash":  rec.CurrentHash,
	}, nil
}
