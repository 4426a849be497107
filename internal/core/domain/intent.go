package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is how a purchase is funded.
type PaymentMethod string

const (
	MethodWallet PaymentMethod = "wallet"
	MethodCard   PaymentMethod = "card"
	MethodHybrid PaymentMethod = "hybrid"
)

// PaymentPurpose categorizes what a payment attempt is for.
type PaymentPurpose string

const (
	PurposeCartPayment          PaymentPurpose = "cart_payment"
	PurposeHybridPayment        PaymentPurpose = "hybrid_payment"
	PurposeSwapPayment          PaymentPurpose = "swap_payment"
	PurposeAdvertisementPayment PaymentPurpose = "advertisement_payment"
)

// IntentStatus is the lifecycle state of a payment attempt.
type IntentStatus string

const (
	IntentPending IntentStatus = "pending"
	IntentSuccess IntentStatus = "success"
	IntentFailed  IntentStatus = "failed"
)

// PaymentIntent is the append-style record of a payment attempt, keyed by a
// globally unique reference. It is the idempotency boundary: the transition
// to success happens at most once per reference, and rows are never deleted.
type PaymentIntent struct {
	ID              uuid.UUID      `json:"id"`
	Reference       string         `json:"reference"`
	UserID          uuid.UUID      `json:"user_id"`
	Email           string         `json:"email"`
	Amount          int64          `json:"amount"`
	Method          PaymentMethod  `json:"method"`
	Purpose         PaymentPurpose `json:"purpose"`
	Status          IntentStatus   `json:"status"`
	ServiceFee      int64          `json:"service_fee"`
	ShippingFee     int64          `json:"shipping_fee"`
	InsuranceFee    int64          `json:"insurance_fee"`
	WalletPortion   int64          `json:"wallet_portion"` // debited only when the card leg confirms
	CardPortion     int64          `json:"card_portion"`
	Metadata        []byte         `json:"-"` // serialized CheckoutSnapshot for deferred order creation
	GatewayResponse *string        `json:"gateway_response,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
}

// IsProcessed reports whether the intent has reached a terminal state.
func (p *PaymentIntent) IsProcessed() bool {
	return p.Status != IntentPending
}

// NewReference generates a globally unique payment reference that
// correlates the intent, its gateway session, and the resulting orders.
func NewReference() string {
	return "MKT-" + uuid.NewString()
}
