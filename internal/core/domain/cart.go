package domain

import "github.com/google/uuid"

// CartItem is a single priced line item at checkout time.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	SellerID  uuid.UUID `json:"seller_id"`
	Title     string    `json:"title"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int       `json:"quantity"`
}

// Subtotal returns unit price times quantity.
func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Address is a shipping destination.
type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// CheckoutSnapshot captures the priced cart and shipping choice at the
// moment a payment is initiated. For deferred (card/hybrid) payments it is
// serialized into the intent's metadata and replayed at webhook time, so
// later cart edits cannot change what was paid for.
type CheckoutSnapshot struct {
	Items        []CartItem   `json:"items"`
	ShippingTier ShippingTier `json:"shipping_tier"`
	ShippingFee  int64        `json:"shipping_fee"`
	InsuranceFee int64        `json:"insurance_fee"`
	ShipTo       *Address     `json:"ship_to,omitempty"`
}

// BaseAmount sums item prices times quantities.
func (s CheckoutSnapshot) BaseAmount() int64 {
	var sum int64
	for _, it := range s.Items {
		sum += it.Subtotal()
	}
	return sum
}
