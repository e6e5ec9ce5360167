package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// SQLiteStore is a file-backed Store.
type SQLiteStore struct {
	db  *sql.DB
	log logger.LoggerInterface
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string, log logger.LoggerInterface) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("eventstore: create data directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("eventstore: open %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: ping %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, log: log}
	if err := s.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info(ctx, "sqlite event store ready", "path", path)
	return s, nil
}

func (s *SQLiteStore) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		aggregate_id   TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		aggregate_type TEXT    NOT NULL,
		event_id       TEXT    NOT NULL UNIQUE,
		event_type     TEXT    NOT NULL,
		occurred_at    INTEGER NOT NULL,
		payload        BLOB    NOT NULL,
		PRIMARY KEY (aggregate_id, sequence)
	);
	CREATE INDEX IF NOT EXISTS idx_events_aggregate_type ON events (aggregate_type, aggregate_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("eventstore: initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, aggregateType, aggregateID string, expectedVersion int64, records []Record) ([]Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&current); err != nil {
		return nil, storeError("read version", err)
	}
	if current != expectedVersion {
		return nil, concurrencyError(aggregateID, expectedVersion, current)
	}
	if len(records) == 0 {
		return nil, nil
	}

	stored := stamp(aggregateType, aggregateID, current, records)
	for _, r := range stored {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (aggregate_id, sequence, aggregate_type, event_id, event_type, occurred_at, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.AggregateID, r.Sequence, r.AggregateType, r.ID.String(), r.Type, r.OccurredAt.UnixNano(), []byte(r.Payload))
		if err != nil {
			if isSQLiteConstraint(err) {
				return nil, concurrencyError(aggregateID, expectedVersion, r.Sequence)
			}
			return nil, storeError("insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError("commit", err)
	}
	return stored, nil
}

func (s *SQLiteStore) Load(ctx context.Context, aggregateID string, after int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT aggregate_id, sequence, aggregate_type, event_id, event_type, occurred_at, payload
		 FROM events WHERE aggregate_id = ? AND sequence > ? ORDER BY sequence`, aggregateID, after)
	if err != nil {
		return nil, storeError("load", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			eventID string
			nanos   int64
			payload []byte
		)
		if err := rows.Scan(&r.AggregateID, &r.Sequence, &r.AggregateType, &eventID, &r.Type, &nanos, &payload); err != nil {
			return nil, storeError("scan", err)
		}
		if r.ID, err = uuid.Parse(eventID); err != nil {
			return nil, storeError("parse event id", err)
		}
		r.OccurredAt = time.Unix(0, nanos).UTC()
		r.Payload = payload
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load", err)
	}
	return out, nil
}

func (s *SQLiteStore) AggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT aggregate_id FROM events WHERE aggregate_type = ? ORDER BY aggregate_id`, aggregateType)
	if err != nil {
		return nil, storeError("list aggregates", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeError("scan", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
