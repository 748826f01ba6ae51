package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	idx INTEGER PRIMARY KEY,
	record_type TEXT NOT NULL,
	actor TEXT NOT NULL,
	ts TEXT NOT NULL,
	payload TEXT NOT NULL,
	previous_hash TEXT NOT NULL,
	current_hash TEXT NOT NULL
);`

const sqliteTriggers = `
CREATE TRIGGER IF NOT EXISTS ledger_records_no_update
BEFORE UPDATE ON ledger_records
BEGIN
	SELECT RAISE(ABORT, 'ledger_records is append-only');
END;

CREATE TRIGGER IF NOT EXISTS ledger_records_no_delete
BEFORE DELETE ON ledger_records
BEGIN
	SELECT RAISE(ABORT, 'ledger_records is append-only');
END;`

const sqliteColumns = `idx, record_type, actor, ts, payload, previous_hash, current_hash`

// SQLiteStore persists records in SQLite. Timestamps are stored as RFC 3339
// text with microsecond precision.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database file at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serializes writers inside this process.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and migrates it.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate ledger_records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteTriggers); err != nil {
		return fmt.Errorf("migrate ledger_records triggers: %w", err)
	}
	return nil
}

// Save inserts rec. A duplicate index maps to ledger.ErrConcurrentAppend.
func (s *SQLiteStore) Save(ctx context.Context, rec ledger.Record) error {
	query := `INSERT INTO ledger_records (` + sqliteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.Index, rec.Type, rec.Actor, formatStoredTime(rec.Timestamp), string(rec.Payload), rec.PreviousHash, rec.CurrentHash,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("index %d already exists: %w", rec.Index, ledger.ErrConcurrentAppend)
		}
		return fmt.Errorf("failed to insert record %d: %w", rec.Index, err)
	}
	return nil
}

// LoadAll returns every record ordered by index.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM ledger_records ORDER BY idx ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]ledger.Record, 0)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Tail returns the record with the highest index.
func (s *SQLiteStore) Tail(ctx context.Context) (ledger.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM ledger_records ORDER BY idx DESC LIMIT 1`)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, false, nil
	}
	if err != nil {
		return ledger.Record{}, false, err
	}
	return rec, true, nil
}

// Reset deletes every record. The delete trigger is dropped and recreated in
// the same transaction.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DROP TRIGGER IF EXISTS ledger_records_no_delete`,
		`DELETE FROM ledger_records`,
		sqliteTriggers,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset ledger_records: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (ledger.Record, error) {
	var (
		rec     ledger.Record
		ts      string
		payload string
	)
	if err := row.Scan(&rec.Index, &rec.Type, &rec.Actor, &ts, &payload, &rec.PreviousHash, &rec.CurrentHash); err != nil {
		return ledger.Record{}, err
	}
	parsed, err := parseStoredTime(ts)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("record %d: %w", rec.Index, err)
	}
	rec.Timestamp = parsed
	rec.Payload = []byte(payload)
	return rec, nil
}

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended codes carry the primary code in the low byte.
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
