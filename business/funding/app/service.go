package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fd1az/stablecoin-engine/business/funding/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
	"github.com/fd1az/stablecoin-engine/internal/keylock"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// Service is the command side of deposits and withdrawals. Streams are short
// so they are always replayed in full.
type Service struct {
	store     eventstore.Store
	publisher eventstore.Publisher
	logger    logger.LoggerInterface
	now       func() time.Time

	locks keylock.Locks
}

// NewService creates a Service. publisher may be nil.
func NewService(store eventstore.Store, publisher eventstore.Publisher, log logger.LoggerInterface) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Get folds a transaction's stream.
func (s *Service) Get(ctx context.Context, id string) (domain.State, error) {
	records, err := s.store.Load(ctx, id, 0)
	if err != nil {
		return domain.State{}, err
	}
	var state domain.State
	for _, r := range records {
		e, err := decode(r)
		if err != nil {
			return domain.State{}, err
		}
		state = domain.Apply(state, e)
	}
	return state, nil
}

// Initiate opens a deposit or withdrawal.
func (s *Service) Initiate(ctx context.Context, kind domain.Kind, id, account string, amount asset.Amount, destination string) (domain.State, error) {
	return s.execute(ctx, id, kind, func(state domain.State) (domain.Event, error) {
		return domain.Initiate(state, id, kind, account, amount, destination, s.now())
	})
}

// Complete settles a pending transaction.
func (s *Service) Complete(ctx context.Context, id, externalTxID string) (domain.State, error) {
	return s.execute(ctx, id, "", func(state domain.State) (domain.Event, error) {
		return domain.Complete(state, externalTxID, s.now())
	})
}

// Fail marks a transaction failed. Repeating it is a no-op.
func (s *Service) Fail(ctx context.Context, id, reason string, manual bool, externalTxID string) (domain.State, error) {
	return s.execute(ctx, id, "", func(state domain.State) (domain.Event, error) {
		e, ok, err := domain.Fail(state, reason, manual, externalTxID, s.now())
		if err != nil || !ok {
			return nil, err
		}
		return e, nil
	})
}

// execute appends the decided event. A nil event with a nil error leaves the
// stream untouched.
func (s *Service) execute(ctx context.Context, id string, kind domain.Kind, decide func(domain.State) (domain.Event, error)) (domain.State, error) {
	if id == "" {
		return domain.State{}, apperror.Validation("funding id is required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	state, err := s.Get(ctx, id)
	if err != nil {
		return domain.State{}, err
	}
	e, err := decide(state)
	if err != nil {
		return domain.State{}, err
	}
	if e == nil {
		return state, nil
	}
	if kind == "" {
		kind = state.Kind
	}

	rec, err := eventstore.NewRecord(e.EventType(), e.OccurredAt(), e)
	if err != nil {
		return domain.State{}, apperror.Wrap(err, apperror.CodeEventStoreError, "encode funding event")
	}
	stored, err := s.store.Append(ctx, kind.AggregateType(), id, state.Version, []eventstore.Record{rec})
	if err != nil {
		return domain.State{}, err
	}
	next := domain.Apply(state, e)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, stored...); err != nil {
			s.logger.Warn(ctx, "failed to publish funding event", "id", id, "type", e.EventType(), "error", err)
		}
	}
	s.logger.Info(ctx, "funding event appended",
		"id", id,
		"kind", string(next.Kind),
		"event", e.EventType(),
		"status", string(next.Status))
	return next, nil
}

func decode(r eventstore.Record) (domain.Event, error) {
	var (
		e   domain.Event
		err error
	)
	switch r.Type {
	case domain.EventDepositInitiated, domain.EventWithdrawalInitiated:
		var v domain.Initiated
		err = json.Unmarshal(r.Payload, &v)
		e = v
	case domain.EventDepositCompleted, domain.EventWithdrawalCompleted:
		var v domain.Completed
		err = json.Unmarshal(r.Payload, &v)
		e = v
	case domain.EventDepositFailed, domain.EventWithdrawalFailed:
		var v domain.Failed
		err = json.Unmarshal(r.Payload, &v)
		e = v
	default:
		return nil, apperror.New(apperror.CodeEventStoreError,
			apperror.WithContext(fmt.Sprintf("unknown funding event %q at %s/%d", r.Type, r.AggregateID, r.Sequence)))
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeEventStoreError, "decode "+r.Type)
	}
	return e, nil
}
