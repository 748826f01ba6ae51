package ledger

import (
	"context"
	"sort"
	"time"
)

// TypeCount is the number of records of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats summarizes the ledger.
type Stats struct {
	TotalRecords   int            `json:"total_records"`
	ByType         map[string]int `json:"by_type"`
	Types          []TypeCount    `json:"types"`
	FirstTimestamp *time.Time     `json:"first_timestamp"`
	LastTimestamp  *time.Time     `json:"last_timestamp"`
	Valid          bool           `json:"valid"`
	Findings       int            `json:"findings"`
	VerifiedAt     time.Time      `json:"verified_at"`
}

// Statistics aggregates counts and timestamps. The valid flag comes from the
// cached verification of the current head while it is fresh, otherwise the
// same snapshot the counts came from is verified.
func (l *Ledger) Statistics(ctx context.Context) (Stats, error) {
	records, err := l.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Aggregate(records)

	head := Genesis
	if len(records) > 0 {
		head = records[len(records)-1].CurrentHash
	}

	var v verification
	cached := false
	if l.verified != nil {
		v, cached = l.verified.Get(headKey(len(records), head))
	}
	if !cached {
		v, err = l.verifySnapshot(ctx, records)
		if err != nil {
			return Stats{}, err
		}
	}

	stats.Valid = v.result.Valid
	stats.Findings = len(v.result.Errors)
	stats.VerifiedAt = v.at
	return stats, nil
}

// Aggregate computes counts and first/last timestamps without verifying.
func Aggregate(records []Record) Stats {
	stats := Stats{
		TotalRecords: len(records),
		ByType:       make(map[string]int),
		Types:        []TypeCount{},
	}
	for _, r := range records {
		stats.ByType[r.Type]++
	}
	for t, n := range stats.ByType {
		stats.Types = append(stats.Types, TypeCount{Type: t, Count: n})
	}
	sort.Slice(stats.Types, func(i, j int) bool {
		if stats.Types[i].Count != stats.Types[j].Count {
			return stats.Types[i].Count > stats.Types[j].Count
		}
		return stats.Types[i].Type < stats.Types[j].Type
	})

	if len(records) > 0 {
		first := records[0].Timestamp
		last := records[len(records)-1].Timestamp
		stats.FirstTimestamp = &first
		stats.LastTimestamp = &last
	}
	return stats
}
