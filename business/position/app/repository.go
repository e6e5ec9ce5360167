package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fd1az/stablecoin-engine/business/position/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// Repository rebuilds positions from their event streams. Snapshots only
// shorten replay; the stream stays authoritative.
type Repository struct {
	store         eventstore.Store
	snapshots     eventstore.SnapshotStore
	publisher     eventstore.Publisher
	snapshotEvery int64
	logger        logger.LoggerInterface
}

// NewRepository creates a Repository. snapshots and publisher may be nil.
// snapshotEvery <= 0 disables snapshots.
func NewRepository(store eventstore.Store, snapshots eventstore.SnapshotStore, publisher eventstore.Publisher, snapshotEvery int64, log logger.LoggerInterface) *Repository {
	return &Repository{
		store:         store,
		snapshots:     snapshots,
		publisher:     publisher,
		snapshotEvery: snapshotEvery,
		logger:        log,
	}
}

// Load folds the latest snapshot and the events after it. An unknown id
// yields the zero State.
func (r *Repository) Load(ctx context.Context, id string) (domain.State, error) {
	state := r.fromSnapshot(ctx, id)

	records, err := r.store.Load(ctx, id, state.Version)
	if err != nil {
		return domain.State{}, err
	}
	for _, rec := range records {
		e, err := decode(rec)
		if err != nil {
			return domain.State{}, err
		}
		state = domain.Apply(state, e)
		if state.Version != rec.Sequence {
			return domain.State{}, apperror.New(apperror.CodeEventStoreError,
				apperror.WithContext(fmt.Sprintf("position %s: folded version %d at sequence %d",
					id, state.Version, rec.Sequence)))
		}
	}
	return state, nil
}

// History returns every event of a position in order.
func (r *Repository) History(ctx context.Context, id string) ([]domain.Event, error) {
	records, err := r.store.Load(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		e, err := decode(rec)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// IDs lists every position stream.
func (r *Repository) IDs(ctx context.Context) ([]string, error) {
	return r.store.AggregateIDs(ctx, domain.AggregateType)
}

// Append writes e after state.Version and returns the folded result.
// Snapshotting and publishing happen after the append and never fail it.
func (r *Repository) Append(ctx context.Context, state domain.State, id string, e domain.Event) (domain.State, error) {
	rec, err := encode(e)
	if err != nil {
		return domain.State{}, err
	}
	stored, err := r.store.Append(ctx, domain.AggregateType, id, state.Version, []eventstore.Record{rec})
	if err != nil {
		return domain.State{}, err
	}
	next := domain.Apply(state, e)

	if r.snapshots != nil && r.snapshotEvery > 0 && next.Version%r.snapshotEvery == 0 {
		r.saveSnapshot(ctx, next)
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, stored...); err != nil {
			r.logger.Warn(ctx, "failed to publish position event",
				"position_id", id, "type", e.EventType(), "error", err)
		}
	}
	return next, nil
}

func (r *Repository) fromSnapshot(ctx context.Context, id string) domain.State {
	if r.snapshots == nil {
		return domain.State{}
	}
	snap, ok, err := r.snapshots.Get(ctx, id)
	if err != nil {
		r.logger.Warn(ctx, "snapshot unavailable, replaying full stream", "position_id", id, "error", err)
		return domain.State{}
	}
	if !ok {
		return domain.State{}
	}
	var state domain.State
	if err := json.Unmarshal(snap.State, &state); err != nil || state.Version != snap.Version {
		r.logger.Warn(ctx, "discarding unreadable snapshot", "position_id", id, "version", snap.Version)
		return domain.State{}
	}
	return state
}

func (r *Repository) saveSnapshot(ctx context.Context, s domain.State) {
	data, err := json.Marshal(s)
	if err != nil {
		r.logger.Warn(ctx, "failed to encode snapshot", "position_id", s.ID, "error", err)
		return
	}
	err = r.snapshots.Save(ctx, eventstore.Snapshot{
		AggregateID: s.ID,
		Version:     s.Version,
		State:       data,
		TakenAt:     time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn(ctx, "failed to save snapshot", "position_id", s.ID, "error", err)
	}
}
