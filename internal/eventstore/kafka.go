package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// KafkaPublisher streams records to a topic keyed by aggregate id, so one
// aggregate's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    logger.LoggerInterface
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string, log logger.LoggerInterface) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("eventstore: kafka brokers not configured")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		log: log,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("eventstore: marshal record %s: %w", r.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.AggregateID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(r.Type)},
				{Key: "aggregate_type", Value: []byte(r.AggregateType)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return storeError("publish", err)
	}
	p.log.Debug(ctx, "events published to kafka", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
