package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, buyer_id, seller_id, product_id, product_title, quantity, unit_price,
	total_amount, payment_method, reference, status,
	service_fee, shipping_fee, shipping_method, ship_to,
	escrow_state, released_via, released_at, quality_rating, quality_notes, inspection_deadline,
	shipment_id, tracking_code, tracking_url,
	paid_at, created_at, updated_at`

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts an order inside a payment transaction.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`

	_, err := tx.Exec(ctx, query,
		o.ID, o.BuyerID, o.SellerID, o.ProductID, o.ProductTitle, o.Quantity, o.UnitPrice,
		o.TotalAmount, o.PaymentMethod, o.Reference, o.Status,
		o.ServiceFee, o.ShippingFee, o.ShippingMethod, o.ShipTo,
		o.EscrowState, o.ReleasedVia, o.ReleasedAt, o.QualityRating, o.QualityNotes, o.InspectionDeadline,
		o.ShipmentID, o.TrackingCode, o.TrackingURL,
		o.PaidAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &o.ProductID, &o.ProductTitle, &o.Quantity, &o.UnitPrice,
		&o.TotalAmount, &o.PaymentMethod, &o.Reference, &o.Status,
		&o.ServiceFee, &o.ShippingFee, &o.ShippingMethod, &o.ShipTo,
		&o.EscrowState, &o.ReleasedVia, &o.ReleasedAt, &o.QualityRating, &o.QualityNotes, &o.InspectionDeadline,
		&o.ShipmentID, &o.TrackingCode, &o.TrackingURL,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID fetches an order by its UUID.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

// ListByReference returns all orders created from one checkout.
func (r *OrderRepo) ListByReference(ctx context.Context, reference string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE reference = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, reference)
	if err != nil {
		return nil, fmt.Errorf("list orders by reference: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListExpiredEscrow returns in-escrow orders whose inspection deadline has
// passed, oldest deadlines first.
func (r *OrderRepo) ListExpiredEscrow(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE escrow_state = $1 AND inspection_deadline <= $2 AND status != $3
		ORDER BY inspection_deadline
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, domain.EscrowHeld, now, domain.OrderCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired escrow: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// Release transitions an order out of escrow. The escrow_state guard makes
// release terminal: once released the row never matches again, so the
// payout tied to this update can happen at most once.
func (r *OrderRepo) Release(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, via domain.ReleaseVia, releasedAt time.Time, rating *int, notes *string) (bool, error) {
	query := `UPDATE orders
		SET escrow_state = $1, released_via = $2, released_at = $3,
			quality_rating = $4, quality_notes = $5, updated_at = now()
		WHERE id = $6 AND escrow_state = $7`

	tag, err := tx.Exec(ctx, query, domain.EscrowReleased, via, releasedAt, rating, notes, orderID, domain.EscrowHeld)
	if err != nil {
		return false, fmt.Errorf("release escrow: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetDispatched stamps carrier identifiers and moves the order to shipped.
func (r *OrderRepo) SetDispatched(ctx context.Context, orderID uuid.UUID, shipmentID, trackingCode, trackingURL string) error {
	query := `UPDATE orders
		SET status = $1, shipment_id = $2, tracking_code = $3, tracking_url = $4, updated_at = now()
		WHERE id = $5`

	tag, err := r.pool.Exec(ctx, query, domain.OrderShipped, shipmentID, trackingCode, trackingURL, orderID)
	if err != nil {
		return fmt.Errorf("set order dispatched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", orderID)
	}
	return nil
}
