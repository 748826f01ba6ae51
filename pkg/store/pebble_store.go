package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// Records live under "rec/" followed by the big-endian index, so key order is index order.
var (
	pebbleRecordPrefix = []byte("rec/")
	pebbleRecordEnd    = []byte("rec0") // '/'+1
)

// PebbleStore persists records in an embedded Pebble key-value store.
type PebbleStore struct {
	db *pebble.DB
	mu sync.Mutex
}

// OpenPebble opens (or creates) a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func pebbleKey(index int64) []byte {
	key := make([]byte, len(pebbleRecordPrefix)+8)
	copy(key, pebbleRecordPrefix)
	binary.BigEndian.PutUint64(key[len(pebbleRecordPrefix):], uint64(index))
	return key
}

// Save writes rec with a synced write. An existing key maps to ledger.ErrConcurrentAppend.
func (p *PebbleStore) Save(_ context.Context, rec ledger.Record) error {
	if rec.Index < 0 {
		return fmt.Errorf("negative index %d", rec.Index)
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := pebbleKey(rec.Index)

	p.mu.Lock()
	defer p.mu.Unlock()

	_, closer, err := p.db.Get(key)
	switch {
	case err == nil:
		_ = closer.Close()
		return fmt.Errorf("index %d already exists: %w", rec.Index, ledger.ErrConcurrentAppend)
	case !errors.Is(err, pebble.ErrNotFound):
		return err
	}

	return p.db.Set(key, value, pebble.Sync)
}

// LoadAll iterates every record key in order.
func (p *PebbleStore) LoadAll(_ context.Context) ([]ledger.Record, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: pebbleRecordPrefix,
		UpperBound: pebbleRecordEnd,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	records := make([]ledger.Record, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var rec ledger.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode key %x: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

// Tail returns the record with the highest key.
func (p *PebbleStore) Tail(_ context.Context) (ledger.Record, bool, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: pebbleRecordPrefix,
		UpperBound: pebbleRecordEnd,
	})
	if err != nil {
		return ledger.Record{}, false, err
	}
	defer func() { _ = iter.Close() }()

	if !iter.Last() {
		return ledger.Record{}, false, iter.Error()
	}
	var rec ledger.Record
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return ledger.Record{}, false, err
	}
	return rec, true, nil
}

// Reset deletes every record key.
func (p *PebbleStore) Reset(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.DeleteRange(pebbleRecordPrefix, pebbleRecordEnd, pebble.Sync)
}

// Close flushes and closes the database.
func (p *PebbleStore) Close() error {
	return p.db.Close()
}
