package events

import (
	"context"

	"marketplace-payments/internal/core/domain"
)

// NopPublisher discards all events. Used when Kafka is disabled.
type NopPublisher struct{}

// NewNopPublisher creates a publisher that does nothing.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

func (NopPublisher) PublishOrderPaid(ctx context.Context, reference string, orders []domain.Order) error {
	return nil
}

func (NopPublisher) PublishEscrowReleased(ctx context.Context, order *domain.Order) error {
	return nil
}
