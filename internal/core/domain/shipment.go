package domain

import (
	"time"

	"github.com/google/uuid"
)

// ShipmentStatus is the delivery-dispatch state of an outbox entry.
type ShipmentStatus string

const (
	ShipmentPending    ShipmentStatus = "pending"
	ShipmentDispatched ShipmentStatus = "dispatched"
	ShipmentFailed     ShipmentStatus = "failed"
)

// ShipmentOutbox is a durable record of a carrier dispatch still owed for a
// paid order. It is written in the same database transaction as the order,
// then worked off by the dispatcher with retries. Dispatch failures never
// touch payment state.
type ShipmentOutbox struct {
	ID           uuid.UUID      `json:"id"`
	OrderID      uuid.UUID      `json:"order_id"`
	Reference    string         `json:"reference"`
	Status       ShipmentStatus `json:"status"`
	Attempt      int            `json:"attempt"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	LastError    *string        `json:"last_error,omitempty"`
	ShipmentID   *string        `json:"shipment_id,omitempty"`
	TrackingCode *string        `json:"tracking_code,omitempty"`
	TrackingURL  *string        `json:"tracking_url,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
