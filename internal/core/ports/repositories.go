package ports

import (
	"context"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic locking; the wallet row lock is what serializes concurrent
// debits for the same user.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance int64) error
	// AddBalance atomically upserts a credit, creating the wallet if the
	// user has none yet. Returns the resulting balance.
	AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error)
}

// IntentRepository defines persistence for payment intents.
type IntentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, intent *domain.PaymentIntent) error
	GetByReference(ctx context.Context, reference string) (*domain.PaymentIntent, error)
	// MarkSuccess transitions a pending intent to success. It returns false
	// when the intent was not pending, which is how duplicate webhook
	// deliveries are detected under concurrency: the guarded update also
	// locks the row, serializing competing deliveries for one reference.
	MarkSuccess(ctx context.Context, tx pgx.Tx, reference string, paidAt time.Time, gatewayResponse string) (bool, error)
	// MarkFailed transitions a pending intent to failed; false when the
	// intent already reached a terminal state.
	MarkFailed(ctx context.Context, reference string, gatewayResponse string) (bool, error)
}

// OrderRepository defines persistence for orders and their escrow state.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByReference(ctx context.Context, reference string) ([]domain.Order, error)
	// ListExpiredEscrow returns orders still in escrow whose inspection
	// deadline has passed.
	ListExpiredEscrow(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
	// Release transitions an order out of escrow. The update is guarded on
	// the in-escrow state; false means the order was already released and
	// no payout must happen.
	Release(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, via domain.ReleaseVia, releasedAt time.Time, rating *int, notes *string) (bool, error)
	// SetDispatched stamps carrier identifiers and moves the order to shipped.
	SetDispatched(ctx context.Context, orderID uuid.UUID, shipmentID, trackingCode, trackingURL string) error
}

// ShipmentOutboxRepository defines persistence for pending carrier dispatches.
type ShipmentOutboxRepository interface {
	Enqueue(ctx context.Context, tx pgx.Tx, entry *domain.ShipmentOutbox) error
	// ListDue returns pending entries whose next retry time has passed (or
	// was never set).
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ShipmentOutbox, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, shipmentID, trackingCode, trackingURL string) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempt int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
