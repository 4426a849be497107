package postgres

import (
	"context"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.ShipmentOutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Enqueue inserts an outbox entry in the same transaction as its order.
func (r *OutboxRepo) Enqueue(ctx context.Context, tx pgx.Tx, entry *domain.ShipmentOutbox) error {
	query := `INSERT INTO shipment_outbox
		(id, order_id, reference, status, attempt, next_retry_at, last_error,
		 shipment_id, tracking_code, tracking_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		entry.ID, entry.OrderID, entry.Reference, entry.Status, entry.Attempt,
		entry.NextRetryAt, entry.LastError,
		entry.ShipmentID, entry.TrackingCode, entry.TrackingURL,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue shipment: %w", err)
	}
	return nil
}

// ListDue returns pending entries ready for (re)dispatch.
func (r *OutboxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ShipmentOutbox, error) {
	query := `SELECT id, order_id, reference, status, attempt, next_retry_at, last_error,
		shipment_id, tracking_code, tracking_url, created_at, updated_at
		FROM shipment_outbox
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY created_at
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, domain.ShipmentPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due shipments: %w", err)
	}
	defer rows.Close()

	var entries []domain.ShipmentOutbox
	for rows.Next() {
		var e domain.ShipmentOutbox
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.Reference, &e.Status, &e.Attempt, &e.NextRetryAt, &e.LastError,
			&e.ShipmentID, &e.TrackingCode, &e.TrackingURL, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkDispatched records a booked shipment.
func (r *OutboxRepo) MarkDispatched(ctx context.Context, id uuid.UUID, shipmentID, trackingCode, trackingURL string) error {
	query := `UPDATE shipment_outbox
		SET status = $1, shipment_id = $2, tracking_code = $3, tracking_url = $4, updated_at = now()
		WHERE id = $5`

	if _, err := r.pool.Exec(ctx, query, domain.ShipmentDispatched, shipmentID, trackingCode, trackingURL, id); err != nil {
		return fmt.Errorf("mark shipment dispatched: %w", err)
	}
	return nil
}

// MarkRetry schedules the next attempt.
func (r *OutboxRepo) MarkRetry(ctx context.Context, id uuid.UUID, attempt int, nextRetryAt time.Time, lastError string) error {
	query := `UPDATE shipment_outbox
		SET attempt = $1, next_retry_at = $2, last_error = $3, updated_at = now()
		WHERE id = $4`

	if _, err := r.pool.Exec(ctx, query, attempt, nextRetryAt, lastError, id); err != nil {
		return fmt.Errorf("mark shipment retry: %w", err)
	}
	return nil
}

// MarkFailed parks an entry after its attempts are exhausted.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `UPDATE shipment_outbox
		SET status = $1, last_error = $2, updated_at = now()
		WHERE id = $3`

	if _, err := r.pool.Exec(ctx, query, domain.ShipmentFailed, lastError, id); err != nil {
		return fmt.Errorf("mark shipment failed: %w", err)
	}
	return nil
}
