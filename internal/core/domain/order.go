package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// ShippingMethod is how the item reaches the buyer.
type ShippingMethod string

const (
	ShippingSelfArranged ShippingMethod = "self-arranged"
	ShippingCarrier      ShippingMethod = "carrier"
)

// EscrowState is the tagged escrow lifecycle state. Release is terminal;
// the repository release operation is guarded so a released order can never
// transition again.
type EscrowState string

const (
	EscrowHeld     EscrowState = "in_escrow"
	EscrowReleased EscrowState = "released"
)

// ReleaseVia records which transition released the escrow.
type ReleaseVia string

const (
	ReleaseBuyerConfirmed ReleaseVia = "buyer_confirmed"
	ReleaseAutoExpired    ReleaseVia = "auto_released"
)

// Order is one purchased line item. All orders from one checkout share a
// payment reference. Orders are created only after funds are confirmed.
type Order struct {
	ID            uuid.UUID     `json:"id"`
	BuyerID       uuid.UUID     `json:"buyer_id"`
	SellerID      uuid.UUID     `json:"seller_id"`
	ProductID     uuid.UUID     `json:"product_id"`
	ProductTitle  string        `json:"product_title"`
	Quantity      int           `json:"quantity"`
	UnitPrice     int64         `json:"unit_price"`
	TotalAmount   int64         `json:"total_amount"` // unit price x qty + shipping share
	PaymentMethod PaymentMethod `json:"payment_method"`
	Reference     string        `json:"reference"`
	Status        OrderStatus   `json:"status"`

	ServiceFee     int64          `json:"service_fee"`  // this order's share of the cart service fee
	ShippingFee    int64          `json:"shipping_fee"` // this order's share of shipping + insurance
	ShippingMethod ShippingMethod `json:"shipping_method"`
	ShipTo         *Address       `json:"ship_to,omitempty"`

	EscrowState        EscrowState `json:"escrow_state"`
	ReleasedVia        *ReleaseVia `json:"released_via,omitempty"`
	ReleasedAt         *time.Time  `json:"released_at,omitempty"`
	QualityRating      *int        `json:"quality_rating,omitempty"`
	QualityNotes       *string     `json:"quality_notes,omitempty"`
	InspectionDeadline time.Time   `json:"inspection_deadline"`

	ShipmentID   *string `json:"shipment_id,omitempty"`
	TrackingCode *string `json:"tracking_code,omitempty"`
	TrackingURL  *string `json:"tracking_url,omitempty"`

	PaidAt    time.Time `json:"paid_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InEscrow reports whether funds for this order are still held.
func (o *Order) InEscrow() bool {
	return o.EscrowState == EscrowHeld
}

// CanConfirmQuality reports whether a buyer confirmation is currently valid.
func (o *Order) CanConfirmQuality() bool {
	return o.InEscrow() && o.Status != OrderCancelled
}

// SellerReceives is the amount credited to the seller when escrow releases:
// item value minus this order's service fee share. Shipping and insurance
// are pass-through and never part of the payout.
func (o *Order) SellerReceives() int64 {
	return o.TotalAmount - o.ShippingFee - o.ServiceFee
}
