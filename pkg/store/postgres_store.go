package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/EmilyTench10/prueba-tecnica-lite-thinking/pkg/ledger"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const pgSchema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	idx BIGINT PRIMARY KEY,
	record_type TEXT NOT NULL,
	actor TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL,
	previous_hash TEXT NOT NULL,
	current_hash TEXT NOT NULL
);

CREATE OR REPLACE FUNCTION ledger_records_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'ledger_records is append-only';
END
$$ LANGUAGE plpgsql;

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_trigger WHERE tgname = 'ledger_records_no_mutation'
	) THEN
		CREATE TRIGGER ledger_records_no_mutation
		BEFORE UPDATE OR DELETE ON ledger_records
		FOR EACH ROW EXECUTE FUNCTION ledger_records_immutable();
	END IF;
END
$$;
`

const pgColumns = `idx, record_type, actor, ts, payload, previous_hash, current_hash`

// PostgresStore persists records in Postgres. Multiple service replicas may
// share one table: the primary key on idx serializes tail extension.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open *sql.DB (driver "postgres").
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn, pings and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the table and the immutability trigger.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("migrate ledger_records: %w", err)
	}
	return nil
}

// Save inserts rec. A unique violation on idx maps to ledger.ErrConcurrentAppend.
func (s *PostgresStore) Save(ctx context.Context, rec ledger.Record) error {
	query := `
		INSERT INTO ledger_records (` + pgColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Index, rec.Type, rec.Actor, rec.Timestamp.UTC(), []byte(rec.Payload), rec.PreviousHash, rec.CurrentHash,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("index %d already exists: %w", rec.Index, ledger.ErrConcurrentAppend)
		}
		return fmt.Errorf("failed to insert record %d: %w", rec.Index, err)
	}
	return nil
}

// LoadAll returns every record ordered by index.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pgColumns+` FROM ledger_records ORDER BY idx ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]ledger.Record, 0)
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
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
func (s *PostgresStore) Tail(ctx context.Context) (ledger.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgColumns+` FROM ledger_records ORDER BY idx DESC LIMIT 1`)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Record{}, false, nil
	}
	if err != nil {
		return ledger.Record{}, false, err
	}
	return rec, true, nil
}

// Reset truncates the table. TRUNCATE bypasses the row-level immutability trigger.
func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE ledger_records`)
	return err
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPostgresRecord(row rowScanner) (ledger.Record, error) {
	var (
		rec     ledger.Record
		payload []byte
	)
	if err := row.Scan(&rec.Index, &rec.Type, &rec.Actor, &rec.Timestamp, &payload, &rec.PreviousHash, &rec.CurrentHash); err != nil {
		return ledger.Record{}, err
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Payload = payload
	return rec, nil
}
