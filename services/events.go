// services/events.go
package services

import (
	"context"
	"encoding/json"
	"time"

	"proof-reward-system/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type EventType string

const (
	EventSubmissionCreated  EventType = "submission.created"
	EventSubmissionApproved EventType = "submission.approved"
	EventSubmissionRejected EventType = "submission.rejected"
	EventSubmissionClaimed  EventType = "submission.claimed"
	EventClaimFailed        EventType = "claim.failed"
)

// SubmissionEvent is published after a lifecycle change has been committed
type SubmissionEvent struct {
	ID              string                  `json:"id"`
	Type            EventType               `json:"type"`
	WalletAddress   string                  `json:"walletAddress"`
	Status          models.SubmissionStatus `json:"status"`
	TransactionHash string                  `json:"transactionHash,omitempty"`
	Detail          string                  `json:"detail,omitempty"`
	OccurredAt      time.Time               `json:"occurredAt"`
}

// EventPublisher is best effort: failures are reported to the caller for logging only
type EventPublisher interface {
	Publish(ctx context.Context, event SubmissionEvent) error
	Close() error
}

// NewSubmissionEvent stamps an event with an id and the current time
func NewSubmissionEvent(clock clockwork.Clock, typ EventType, sub *models.Submission) SubmissionEvent {
	ev := SubmissionEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: clock.Now().UTC(),
	}
	if sub != nil {
		ev.WalletAddress = sub.WalletAddress
		ev.Status = sub.Status
		if sub.TransactionHash != nil {
			ev.TransactionHash = *sub.TransactionHash
		}
	}
	return ev
}

type NopEventPublisher struct{}

func (NopEventPublisher) Publish(context.Context, SubmissionEvent) error { return nil }
func (NopEventPublisher) Close() error                                   { return nil }

// KafkaEventPublisher writes events keyed by wallet so one learner's events stay ordered
type KafkaEventPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaEventPublisher(brokers []string, topic string, log *zap.Logger) (*KafkaEventPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewKafkaEventPublisherWithProducer(producer, topic, log), nil
}

func NewKafkaEventPublisherWithProducer(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaEventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaEventPublisher{producer: producer, topic: topic, log: log.Named("events")}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event SubmissionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.WalletAddress),
		Value:     sarama.ByteEncoder(data),
		Timestamp: event.OccurredAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return err
	}

	p.log.Debug("event published",
		zap.String("type", string(event.Type)),
		zap.String("wallet", event.WalletAddress),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
