package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Event types carried on the payment events topic.
const (
	EventOrderPaid      = "ORDER_PAID"
	EventEscrowReleased = "ESCROW_RELEASED"
)

// PaymentEvent is the envelope published for downstream consumers
// (notification service, analytics).
type PaymentEvent struct {
	EventType string          `json:"event_type"`
	Reference string          `json:"reference,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type orderPaidPayload struct {
	Reference string         `json:"reference"`
	Orders    []domain.Order `json:"orders"`
}

type escrowReleasedPayload struct {
	Order  *domain.Order `json:"order"`
	Payout int64         `json:"payout"`
}

// KafkaPublisher implements ports.EventPublisher on a Kafka topic.
// Publishing is best-effort: callers log publish errors but never roll back
// payments over them.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

// NewKafkaPublisher connects a synchronous producer to the given brokers.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka publisher initialized")
	return &KafkaPublisher{producer: producer, topic: topic, log: log}, nil
}

// NewKafkaPublisherWithProducer wires an existing producer, used by tests.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

// PublishOrderPaid emits one event per settled checkout.
func (p *KafkaPublisher) PublishOrderPaid(_ context.Context, reference string, orders []domain.Order) error {
	payload, err := json.Marshal(orderPaidPayload{Reference: reference, Orders: orders})
	if err != nil {
		return fmt.Errorf("marshal order paid payload: %w", err)
	}
	return p.publish(reference, PaymentEvent{
		EventType: EventOrderPaid,
		Reference: reference,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	})
}

// PublishEscrowReleased emits one event per released order.
func (p *KafkaPublisher) PublishEscrowReleased(_ context.Context, order *domain.Order) error {
	payload, err := json.Marshal(escrowReleasedPayload{Order: order, Payout: order.SellerReceives()})
	if err != nil {
		return fmt.Errorf("marshal escrow released payload: %w", err)
	}
	return p.publish(order.Reference, PaymentEvent{
		EventType: EventEscrowReleased,
		Reference: order.Reference,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	})
}

func (p *KafkaPublisher) publish(key string, event PaymentEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(eventJSON),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	p.log.Debug().
		Str("event_type", event.EventType).
		Str("reference", event.Reference).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event published")
	return nil
}

// Close releases the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
