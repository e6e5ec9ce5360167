package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const pgUniqueViolation = "23505"

// PostgresStore is a Store on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  logger.LoggerInterface
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, log logger.LoggerInterface) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, log: log}
	if err := s.initializeSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info(ctx, "postgres event store ready")
	return s, nil
}

func (s *PostgresStore) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		aggregate_id   TEXT        NOT NULL,
		sequence       BIGINT      NOT NULL,
		aggregate_type TEXT        NOT NULL,
		event_id       UUID        NOT NULL UNIQUE,
		event_type     TEXT        NOT NULL,
		occurred_at    TIMESTAMPTZ NOT NULL,
		payload        JSONB       NOT NULL,
		PRIMARY KEY (aggregate_id, sequence)
	);
	CREATE INDEX IF NOT EXISTS idx_events_aggregate_type ON events (aggregate_type, aggregate_id);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("eventstore: initialize schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, aggregateType, aggregateID string, expectedVersion int64, records []Record) ([]Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storeError("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE aggregate_id = $1`, aggregateID,
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
	batch := &pgx.Batch{}
	for _, r := range stored {
		batch.Queue(
			`INSERT INTO events (aggregate_id, sequence, aggregate_type, event_id, event_type, occurred_at, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::JSONB)`,
			r.AggregateID, r.Sequence, r.AggregateType, r.ID.String(), r.Type, r.OccurredAt, string(r.Payload))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, concurrencyError(aggregateID, expectedVersion, current+1)
		}
		return nil, storeError("insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeError("commit", err)
	}
	return stored, nil
}

func (s *PostgresStore) Load(ctx context.Context, aggregateID string, after int64) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT aggregate_id, sequence, aggregate_type, event_id::TEXT, event_type, occurred_at, payload::TEXT
		 FROM events WHERE aggregate_id = $1 AND sequence > $2 ORDER BY sequence`, aggregateID, after)
	if err != nil {
		return nil, storeError("load", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			eventID string
			payload string
		)
		if err := rows.Scan(&r.AggregateID, &r.Sequence, &r.AggregateType, &eventID, &r.Type, &r.OccurredAt, &payload); err != nil {
			return nil, storeError("scan", err)
		}
		if err := r.ID.UnmarshalText([]byte(eventID)); err != nil {
			return nil, storeError("parse event id", err)
		}
		r.OccurredAt = r.OccurredAt.UTC()
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load", err)
	}
	return out, nil
}

func (s *PostgresStore) AggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT aggregate_id FROM events WHERE aggregate_type = $1 ORDER BY aggregate_id`, aggregateType)
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
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
