package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// OrderFactoryImpl implements ports.OrderFactory. It is only ever called
// inside a payment confirmation transaction, after funds are secured.
type OrderFactoryImpl struct {
	orderRepo        ports.OrderRepository
	outboxRepo       ports.ShipmentOutboxRepository
	inspectionPeriod time.Duration
	log              zerolog.Logger
}

// NewOrderFactory creates a new OrderFactoryImpl.
func NewOrderFactory(
	orderRepo ports.OrderRepository,
	outboxRepo ports.ShipmentOutboxRepository,
	inspectionPeriod time.Duration,
	log zerolog.Logger,
) *OrderFactoryImpl {
	return &OrderFactoryImpl{
		orderRepo:        orderRepo,
		outboxRepo:       outboxRepo,
		inspectionPeriod: inspectionPeriod,
		log:              log,
	}
}

// CreateForPayment persists one order per cart line item. Service, shipping
// and insurance fees are split across items in proportion to nothing - an
// equal split per item, with the division remainder assigned to the first
// item so the per-order amounts always sum back to the cart totals. Every
// order starts in escrow with its inspection deadline set from the payment
// time. Carrier orders also get an outbox entry so the dispatcher picks
// them up after commit.
func (s *OrderFactoryImpl) CreateForPayment(ctx context.Context, tx pgx.Tx, params ports.CreateOrdersParams) ([]domain.Order, error) {
	snapshot := params.Snapshot
	if len(snapshot.Items) == 0 {
		return nil, apperror.ErrEmptyCart()
	}

	method := snapshot.ShippingTier.Method()
	if method == domain.ShippingCarrier && snapshot.ShipTo == nil {
		return nil, apperror.ErrMissingShippingAddress()
	}

	n := int64(len(snapshot.Items))
	serviceShare, serviceRem := params.Fees.ServiceFee/n, params.Fees.ServiceFee%n
	shippingTotal := params.Fees.ShippingFee + params.Fees.InsuranceFee
	shippingShare, shippingRem := shippingTotal/n, shippingTotal%n

	now := time.Now().UTC()
	deadline := params.PaidAt.Add(s.inspectionPeriod)

	orders := make([]domain.Order, 0, len(snapshot.Items))
	for i, item := range snapshot.Items {
		itemService := serviceShare
		itemShipping := shippingShare
		if i == 0 {
			itemService += serviceRem
			itemShipping += shippingRem
		}

		order := domain.Order{
			ID:                 uuid.New(),
			BuyerID:            params.BuyerID,
			SellerID:           item.SellerID,
			ProductID:          item.ProductID,
			ProductTitle:       item.Title,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			TotalAmount:        item.Subtotal() + itemShipping,
			PaymentMethod:      params.Method,
			Reference:          params.Reference,
			Status:             domain.OrderPaid,
			ServiceFee:         itemService,
			ShippingFee:        itemShipping,
			ShippingMethod:     method,
			ShipTo:             snapshot.ShipTo,
			EscrowState:        domain.EscrowHeld,
			InspectionDeadline: deadline,
			PaidAt:             params.PaidAt,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		if err := s.orderRepo.Create(ctx, tx, &order); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("create order: %w", err))
		}

		if method == domain.ShippingCarrier {
			entry := domain.ShipmentOutbox{
				ID:        uuid.New(),
				OrderID:   order.ID,
				Reference: params.Reference,
				Status:    domain.ShipmentPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.outboxRepo.Enqueue(ctx, tx, &entry); err != nil {
				return nil, apperror.ErrDatabaseError(fmt.Errorf("enqueue shipment: %w", err))
			}
		}

		orders = append(orders, order)
	}

	s.log.Info().
		Str("reference", params.Reference).
		Int("orders", len(orders)).
		Str("method", string(params.Method)).
		Msg("orders created for confirmed payment")

	return orders, nil
}
