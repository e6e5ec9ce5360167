// Package eventstore persists aggregate event streams with optimistic
// concurrency, keeps snapshots and fans appended events out to subscribers.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// Record is one persisted event. Sequence starts at 1 per aggregate and has
// no gaps.
type Record struct {
	ID            uuid.UUID       `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Sequence      int64           `json:"sequence"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewRecord marshals payload into an unsequenced record.
func NewRecord(eventType string, occurredAt time.Time, payload any) (Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("eventstore: marshal %s: %w", eventType, err)
	}
	return Record{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: occurredAt.UTC(),
		Payload:    data,
	}, nil
}

// Store is an append-only event log.
type Store interface {
	// Append writes records after expectedVersion. It fails with
	// CodeConcurrentModification when the stream has moved on, and returns
	// the records as stored (sequenced and stamped).
	Append(ctx context.Context, aggregateType, aggregateID string, expectedVersion int64, records []Record) ([]Record, error)
	// Load returns the records with Sequence > after, in order.
	Load(ctx context.Context, aggregateID string, after int64) ([]Record, error)
	// AggregateIDs lists every stream of one aggregate type.
	AggregateIDs(ctx context.Context, aggregateType string) ([]string, error)
	Close() error
}

// Snapshot is a serialized aggregate state at Version.
type Snapshot struct {
	AggregateID string          `json:"aggregate_id"`
	Version     int64           `json:"version"`
	State       json.RawMessage `json:"state"`
	TakenAt     time.Time       `json:"taken_at"`
}

// SnapshotStore keeps the latest snapshot per aggregate.
type SnapshotStore interface {
	Save(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, aggregateID string) (Snapshot, bool, error)
}

// Publisher delivers appended records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, records ...Record) error
}

func concurrencyError(aggregateID string, expected, actual int64) error {
	return apperror.New(apperror.CodeConcurrentModification,
		apperror.WithContext(fmt.Sprintf("aggregate %s: expected version %d, actual %d",
			aggregateID, expected, actual)))
}

func storeError(op string, err error) error {
	return apperror.New(apperror.CodeEventStoreError,
		apperror.WithContext(op), apperror.WithCause(err))
}

// stamp assigns identity and sequence to records appended after version.
func stamp(aggregateType, aggregateID string, version int64, records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.OccurredAt.IsZero() {
			r.OccurredAt = time.Now().UTC()
		}
		r.AggregateID = aggregateID
		r.AggregateType = aggregateType
		r.Sequence = version + int64(i) + 1
		out[i] = r
	}
	return out
}
