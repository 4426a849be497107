package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IntentRepo implements ports.IntentRepository. Intent rows are the durable
// idempotency log: they are inserted once per reference and only ever move
// forward from pending to a terminal status.
type IntentRepo struct {
	pool Pool
}

// NewIntentRepo creates a new IntentRepo.
func NewIntentRepo(pool Pool) *IntentRepo {
	return &IntentRepo{pool: pool}
}

// Create inserts a new payment intent inside a transaction.
func (r *IntentRepo) Create(ctx context.Context, tx pgx.Tx, intent *domain.PaymentIntent) error {
	query := `INSERT INTO payment_intents
		(id, reference, user_id, email, amount, method, purpose, status,
		 service_fee, shipping_fee, insurance_fee, wallet_portion, card_portion,
		 metadata, gateway_response, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.Exec(ctx, query,
		intent.ID, intent.Reference, intent.UserID, intent.Email, intent.Amount,
		intent.Method, intent.Purpose, intent.Status,
		intent.ServiceFee, intent.ShippingFee, intent.InsuranceFee,
		intent.WalletPortion, intent.CardPortion,
		intent.Metadata, intent.GatewayResponse, intent.CreatedAt, intent.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

// GetByReference fetches an intent by its payment reference.
func (r *IntentRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	query := `SELECT id, reference, user_id, email, amount, method, purpose, status,
		service_fee, shipping_fee, insurance_fee, wallet_portion, card_portion,
		metadata, gateway_response, created_at, paid_at
		FROM payment_intents WHERE reference = $1`

	intent := &domain.PaymentIntent{}
	err := r.pool.QueryRow(ctx, query, reference).Scan(
		&intent.ID, &intent.Reference, &intent.UserID, &intent.Email, &intent.Amount,
		&intent.Method, &intent.Purpose, &intent.Status,
		&intent.ServiceFee, &intent.ShippingFee, &intent.InsuranceFee,
		&intent.WalletPortion, &intent.CardPortion,
		&intent.Metadata, &intent.GatewayResponse, &intent.CreatedAt, &intent.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get intent by reference: %w", err)
	}
	return intent, nil
}

// MarkSuccess transitions a pending intent to success. The status guard in
// the WHERE clause makes the transition exactly-once: a duplicate delivery
// matches zero rows, and inside a transaction the update also locks the
// intent row so concurrent deliveries serialize here.
func (r *IntentRepo) MarkSuccess(ctx context.Context, tx pgx.Tx, reference string, paidAt time.Time, gatewayResponse string) (bool, error) {
	query := `UPDATE payment_intents
		SET status = $1, paid_at = $2, gateway_response = $3
		WHERE reference = $4 AND status = $5`

	tag, err := tx.Exec(ctx, query, domain.IntentSuccess, paidAt, gatewayResponse, reference, domain.IntentPending)
	if err != nil {
		return false, fmt.Errorf("mark intent success: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions a pending intent to failed.
func (r *IntentRepo) MarkFailed(ctx context.Context, reference string, gatewayResponse string) (bool, error) {
	query := `UPDATE payment_intents
		SET status = $1, gateway_response = $2
		WHERE reference = $3 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, domain.IntentFailed, gatewayResponse, reference, domain.IntentPending)
	if err != nil {
		return false, fmt.Errorf("mark intent failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
