package ledger

import "errors"

var (
	// ErrInvalidRecord is returned when type or actor is missing.
	ErrInvalidRecord = errors.New("ledger: invalid record")
	// ErrPayloadSerialization is returned when a payload has no canonical form.
	ErrPayloadSerialization = errors.New("ledger: payload serialization failed")
	// ErrTemporalOrdering is returned when a timestamp precedes the tail under the reject policy.
	ErrTemporalOrdering = errors.New("ledger: timestamp precedes previous record")
	// ErrConcurrentAppend is returned when another writer extended the tail first.
	// Stores wrap it when their uniqueness constraint on index fires.
	ErrConcurrentAppend = errors.New("ledger: concurrent append conflict")
	// ErrStorage wraps every persistence failure.
	ErrStorage = errors.New("ledger: storage failure")
	// ErrNotFound is returned by Get for an unknown index.
	ErrNotFound = errors.New("ledger: record not found")
)
