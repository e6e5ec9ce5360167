package app

import (
	"encoding/json"
	"fmt"

	"github.com/fd1az/stablecoin-engine/business/position/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/eventstore"
)

// encode turns a position event into an unsequenced record.
func encode(e domain.Event) (eventstore.Record, error) {
	r, err := eventstore.NewRecord(e.EventType(), e.OccurredAt(), e)
	if err != nil {
		return eventstore.Record{}, apperror.Wrap(err, apperror.CodeEventStoreError, "encode position event")
	}
	return r, nil
}

// decode rebuilds the event stored in r.
func decode(r eventstore.Record) (domain.Event, error) {
	var (
		e   domain.Event
		err error
	)
	switch r.Type {
	case domain.EventPositionOpened:
		e, err = unmarshal[domain.PositionOpened](r.Payload)
	case domain.EventCollateralAdded:
		e, err = unmarshal[domain.CollateralAdded](r.Payload)
	case domain.EventDebtBurned:
		e, err = unmarshal[domain.DebtBurned](r.Payload)
	case domain.EventMarginCallIssued:
		e, err = unmarshal[domain.MarginCallIssued](r.Payload)
	case domain.EventPositionLiquidated:
		e, err = unmarshal[domain.PositionLiquidated](r.Payload)
	case domain.EventLiquidationSettled:
		e, err = unmarshal[domain.LiquidationSettled](r.Payload)
	default:
		return nil, apperror.New(apperror.CodeEventStoreError,
			apperror.WithContext(fmt.Sprintf("unknown position event %q at %s/%d", r.Type, r.AggregateID, r.Sequence)))
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeEventStoreError,
			fmt.Sprintf("decode %s at %s/%d", r.Type, r.AggregateID, r.Sequence))
	}
	return e, nil
}

func unmarshal[T domain.Event](payload json.RawMessage) (domain.Event, error) {
	var e T
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	return e, nil
}
