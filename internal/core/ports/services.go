package ports

import (
	"context"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Boundary ports (external collaborators) ---

// GatewaySession is the result of initializing a hosted payment page.
type GatewaySession struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// GatewayClient is the boundary to the external card payment processor.
type GatewayClient interface {
	// Initialize starts a hosted payment session. amountMinor is in the
	// currency's minor unit (kobo).
	Initialize(ctx context.Context, email string, amountMinor int64, reference string, metadata map[string]string) (*GatewaySession, error)
	// VerifySignature checks the webhook HMAC over the exact raw bytes
	// received. Must pass before any state mutation.
	VerifySignature(rawBody []byte, signature string) bool
}

// GatewayEvent is a parsed webhook payload from the card processor.
type GatewayEvent struct {
	Event string           `json:"event"` // e.g. "charge.success", "charge.failed"
	Data  GatewayEventData `json:"data"`
}

// GatewayEventData carries the charge details of a gateway event.
type GatewayEventData struct {
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount"` // minor units
	Status      string `json:"status"`
	PaidAt      string `json:"paid_at,omitempty"`
	Channel     string `json:"channel,omitempty"`
}

// Succeeded reports whether the event settles the charge.
func (e GatewayEvent) Succeeded() bool {
	return e.Event == "charge.success"
}

// ShipmentRequest describes a shipment for the carrier boundary.
type ShipmentRequest struct {
	OrderID     uuid.UUID
	Reference   string
	To          domain.Address
	Description string
	Service     string // carrier service level
}

// ShipmentInfo is the carrier's response for a created shipment.
type ShipmentInfo struct {
	ShipmentID   string
	TrackingCode string
	TrackingURL  string
}

// ShippingClient is the boundary to the external shipping carrier.
type ShippingClient interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentInfo, error)
}

// EventPublisher publishes domain events for downstream consumers
// (notifications, analytics). Publishing is best-effort.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, reference string, orders []domain.Order) error
	PublishEscrowReleased(ctx context.Context, order *domain.Order) error
}

// ProcessedEventCache is the Redis fast path for webhook deduplication.
// The durable guard is the intent status in the database.
type ProcessedEventCache interface {
	Seen(ctx context.Context, reference string) (bool, error)
	MarkSeen(ctx context.Context, reference string, ttl time.Duration) error
}

// TokenService validates (and for test setups, issues) bearer tokens.
// Session issuance itself belongs to the external auth service.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed bearer token claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// --- Ledger port ---

// WalletLedger performs atomic wallet mutations. Debit and Credit must be
// called inside a database transaction; the row lock taken there is what
// keeps the balance invariant under concurrent requests.
type WalletLedger interface {
	// Debit decrements the balance, failing with an insufficient-funds
	// error (never clamping) if the balance cannot cover the amount.
	// Returns the new balance.
	Debit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error)
	// Credit increments the balance, creating the wallet if absent.
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error)
	// Balance is a non-locking read; missing wallets read as zero.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
}

// --- Service ports (business logic) ---

// CheckoutRequest holds validated input for a cart payment.
type CheckoutRequest struct {
	UserID             uuid.UUID
	Email              string
	Snapshot           domain.CheckoutSnapshot
	DeclaredTotal      int64
	DeclaredServiceFee int64
}

// WalletPaymentResult is returned by the synchronous wallet path.
type WalletPaymentResult struct {
	Reference  string
	Orders     []domain.Order
	NewBalance int64
}

// CardPaymentResult is returned by the deferred card path.
type CardPaymentResult struct {
	Reference        string
	AuthorizationURL string
}

// HybridPaymentResult is returned by the hybrid path. When the wallet
// covers the full total the payment degenerates to the wallet path and
// Wallet is set instead of AuthorizationURL.
type HybridPaymentResult struct {
	Reference        string
	AuthorizationURL string
	WalletPortion    int64
	CardPortion      int64
	Wallet           *WalletPaymentResult
}

// PaymentService is the payment orchestration state machine.
type PaymentService interface {
	PayWithWallet(ctx context.Context, req CheckoutRequest) (*WalletPaymentResult, error)
	PayWithCard(ctx context.Context, req CheckoutRequest) (*CardPaymentResult, error)
	PayWithWalletAndCard(ctx context.Context, req CheckoutRequest) (*HybridPaymentResult, error)
	// HandleGatewayEvent processes a webhook delivery: signature check,
	// idempotent replay detection, deferred wallet debit for hybrid, and
	// order creation from the stored checkout snapshot.
	HandleGatewayEvent(ctx context.Context, rawBody []byte, signature string) error
}

// CreateOrdersParams carries everything OrderFactory needs to persist the
// orders for one confirmed payment.
type CreateOrdersParams struct {
	BuyerID   uuid.UUID
	Snapshot  domain.CheckoutSnapshot
	Fees      domain.FeeBreakdown
	Reference string
	Method    domain.PaymentMethod
	PaidAt    time.Time
}

// OrderFactory converts a confirmed payment into persisted orders, one per
// line item, with per-item fee allocation and escrow initialization.
type OrderFactory interface {
	CreateForPayment(ctx context.Context, tx pgx.Tx, params CreateOrdersParams) ([]domain.Order, error)
}

// EscrowStatusView is the read-only escrow projection for display.
type EscrowStatusView struct {
	OrderID           uuid.UUID          `json:"order_id"`
	ShippingMethod    domain.ShippingMethod `json:"shipping_method"`
	EscrowReleased    bool               `json:"escrow_released"`
	ReleasedVia       *domain.ReleaseVia `json:"released_via,omitempty"`
	HoursRemaining    float64            `json:"hours_remaining"`
	QualityRating     *int               `json:"quality_rating,omitempty"`
	CanConfirmQuality bool               `json:"can_confirm_quality"`
}

// EscrowService owns the per-order escrow state machine.
type EscrowService interface {
	// ConfirmQuality releases escrow for a buyer-confirmed order and pays
	// out the seller exactly once.
	ConfirmQuality(ctx context.Context, orderID, buyerID uuid.UUID, rating int, notes *string) (*EscrowStatusView, error)
	// ReleaseExpired releases all in-escrow orders past their inspection
	// deadline, up to batchSize, returning how many were released.
	ReleaseExpired(ctx context.Context, batchSize int) (int, error)
	// Status is a pure read; it never mutates state.
	Status(ctx context.Context, orderID uuid.UUID) (*EscrowStatusView, error)
}
