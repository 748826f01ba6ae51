package ledger

import (
	"context"
	"fmt"
	"time"
)

// FindingKind classifies an integrity finding.
type FindingKind string

const (
	// KindIndexGap: the index is not the successor of the previous record's index.
	KindIndexGap FindingKind = "IndexGap"
	// KindBrokenLink: previous_hash does not match the predecessor.
	KindBrokenLink FindingKind = "BrokenLink"
	// KindTamperedRecord: current_hash does not match the record's contents.
	KindTamperedRecord FindingKind = "TamperedRecord"
)

// Finding is one integrity violation at a record.
type Finding struct {
	Index    int64       `json:"index"`
	Kind     FindingKind `json:"kind"`
	Detail   string      `json:"detail"`
	Expected string      `json:"expected,omitempty"`
	Found    string      `json:"found,omitempty"`
}

// VerificationResult is the exhaustive integrity report of a sequence.
// Valid is true iff Errors is empty.
type VerificationResult struct {
	Valid        bool      `json:"valid"`
	TotalRecords int       `json:"total_records"`
	Errors       []Finding `json:"errors"`
	HeadHash     string    `json:"head_hash"`
}

// Verify recomputes every link and hash in the stored sequence.
// Integrity violations are reported in the result; the error is non-nil only
// when storage cannot be read or ctx is done.
func (l *Ledger) Verify(ctx context.Context) (VerificationResult, error) {
	records, err := l.snapshot(ctx)
	if err != nil {
		return VerificationResult{}, err
	}
	v, err := l.verifySnapshot(ctx, records)
	if err != nil {
		return VerificationResult{}, err
	}
	return v.result, nil
}

// verifySnapshot verifies records, reports metrics and caches the result under its head.
func (l *Ledger) verifySnapshot(ctx context.Context, records []Record) (verification, error) {
	start := time.Now()
	res, err := VerifyRecords(ctx, records)
	if err != nil {
		return verification{}, err
	}
	l.metrics.RecordVerify(ctx, time.Since(start), len(res.Errors))

	if !res.Valid {
		l.logger.Warn("ledger integrity findings",
			"findings", len(res.Errors),
			"first_index", res.Errors[0].Index,
			"first_kind", res.Errors[0].Kind,
		)
	}

	v := verification{result: res, at: l.clock()}
	if l.verified != nil {
		l.verified.Add(headKey(res.TotalRecords, res.HeadHash), v)
	}
	return v, nil
}

// VerifyRecords checks a sequence that is already in memory. Records must be
// in the order they were stored.
//
// A link at i holds only if previous_hash equals both the stored and the
// recomputed hash of record i-1, so altering any field of record k yields
// TamperedRecord at k and BrokenLink at k+1.
func VerifyRecords(ctx context.Context, records []Record) (VerificationResult, error) {
	res := VerificationResult{
		TotalRecords: len(records),
		Errors:       []Finding{},
		HeadHash:     Genesis,
	}

	expectedIndex := int64(0)
	prevStored, prevComputed := Genesis, Genesis

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return VerificationResult{}, fmt.Errorf("verification interrupted: %w", err)
		}

		if rec.Index != expectedIndex {
			res.Errors = append(res.Errors, Finding{
				Index:    rec.Index,
				Kind:     KindIndexGap,
				Detail:   fmt.Sprintf("expected index %d, found %d", expectedIndex, rec.Index),
				Expected: fmt.Sprint(expectedIndex),
				Found:    fmt.Sprint(rec.Index),
			})
		}
		expectedIndex = rec.Index + 1

		if rec.PreviousHash != prevStored || rec.PreviousHash != prevComputed {
			detail := "previous_hash does not match the preceding record"
			if rec.PreviousHash == prevStored {
				detail = "preceding record does not match its own hash"
			}
			res.Errors = append(res.Errors, Finding{
				Index:    rec.Index,
				Kind:     KindBrokenLink,
				Detail:   detail,
				Expected: prevComputed,
				Found:    rec.PreviousHash,
			})
		}

		computed, err := ComputeHash(rec)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, Finding{
				Index:  rec.Index,
				Kind:   KindTamperedRecord,
				Detail: "record cannot be canonically serialized: " + err.Error(),
				Found:  rec.CurrentHash,
			})
		case computed != rec.CurrentHash:
			res.Errors = append(res.Errors, Finding{
				Index:    rec.Index,
				Kind:     KindTamperedRecord,
				Detail:   "current_hash does not match record contents",
				Expected: computed,
				Found:    rec.CurrentHash,
			})
		}

		prevStored, prevComputed = rec.CurrentHash, computed
	}

	if len(records) > 0 {
		res.HeadHash = records[len(records)-1].CurrentHash
	}
	res.Valid = len(res.Errors) == 0
	return res, nil
}

func headKey(total int, head string) string {
	return fmt.Sprintf("%d:%s", total, head)
}
