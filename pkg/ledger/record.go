// Package ledger implements an append-only, hash-chained record log.
//
//   - Each record is linked to its predecessor by previous_hash
//   - current_hash is SHA-256 over the canonical (RFC 8785) form of the record
//   - Records are never mutated; corrections are new records
//   - Verification is exhaustive and reports findings as data
package ledger

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/canonicalize"
)

// Genesis is the previous_hash of the record at index 0.
var Genesis = strings.Repeat("0", 64)

// RecordFormat identifies the canonical serialization used for hashing.
// Changing it invalidates every previously computed hash.
const RecordFormat = "chainledger.record/v1"

// TimestampLayout is the fixed timestamp rendering inside the hash input.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Record is one immutable entry in the ledger.
type Record struct {
	Index        int64           `json:"index"`
	Type         string          `json:"type"`
	Actor        string          `json:"actor"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	PreviousHash string          `json:"previous_hash"`
	CurrentHash  string          `json:"current_hash"`
}

// hashInput is the document hashed into current_hash. Field names are part of the format.
type hashInput struct {
	Actor        string          `json:"actor"`
	Format       string          `json:"format"`
	Index        int64           `json:"index"`
	Payload      json.RawMessage `json:"payload"`
	PreviousHash string          `json:"previous_hash"`
	Timestamp    string          `json:"timestamp"`
	Type         string          `json:"type"`
}

// ComputeHash returns the digest of r with its CurrentHash ignored. The payload
// is hashed as stored, so an absent payload hashes as null and never as {}.
func ComputeHash(r Record) (string, error) {
	payload := r.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	b, err := canonicalize.JCS(hashInput{
		Actor:        r.Actor,
		Format:       RecordFormat,
		Index:        r.Index,
		Payload:      payload,
		PreviousHash: r.PreviousHash,
		Timestamp:    FormatTimestamp(r.Timestamp),
		Type:         r.Type,
	})
	if err != nil {
		return "", err
	}
	return canonicalize.HashBytes(b), nil
}

// FormatTimestamp renders t in UTC with microsecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeTimestamp truncates t to the precision every store can round-trip.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// PayloadMap decodes the payload into a generic map.
func (r Record) PayloadMap() (map[string]any, error) {
	out := map[string]any{}
	if len(r.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clone returns a deep copy so callers cannot alias stored payload bytes.
func (r Record) Clone() Record {
	if r.Payload != nil {
		p := make(json.RawMessage, len(r.Payload))
		copy(p, r.Payload)
		r.Payload = p
	}
	return r
}
