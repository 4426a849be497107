package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EscrowServiceImpl implements ports.EscrowService. Escrow release is
// terminal: both release paths run a guarded update and credit the seller
// in the same transaction, so the payout happens at most once per order no
// matter how confirmations and the expiry sweep interleave.
type EscrowServiceImpl struct {
	orderRepo  ports.OrderRepository
	ledger     ports.WalletLedger
	publisher  ports.EventPublisher
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewEscrowService creates a new EscrowServiceImpl.
func NewEscrowService(
	orderRepo ports.OrderRepository,
	ledger ports.WalletLedger,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		orderRepo:  orderRepo,
		ledger:     ledger,
		publisher:  publisher,
		transactor: transactor,
		log:        log,
	}
}

// ConfirmQuality releases escrow after the buyer approves the item.
func (s *EscrowServiceImpl) ConfirmQuality(ctx context.Context, orderID, buyerID uuid.UUID, rating int, notes *string) (*ports.EscrowStatusView, error) {
	if rating < 1 || rating > 5 {
		return nil, apperror.ErrInvalidQualityRating()
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.BuyerID != buyerID {
		return nil, apperror.ErrNotOrderBuyer()
	}
	if !order.CanConfirmQuality() {
		return nil, apperror.ErrEscrowAlreadyReleased()
	}

	now := time.Now().UTC()
	if err := s.release(ctx, order, domain.ReleaseBuyerConfirmed, now, &rating, notes); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID.String()).
		Int("rating", rating).
		Int64("payout", order.SellerReceives()).
		Msg("escrow released by buyer confirmation")

	via := domain.ReleaseBuyerConfirmed
	order.EscrowState = domain.EscrowReleased
	order.ReleasedVia = &via
	order.ReleasedAt = &now
	order.QualityRating = &rating
	return s.view(order, now), nil
}

// ReleaseExpired releases every in-escrow order past its inspection
// deadline, up to batchSize. Orders release independently: one failure is
// logged and skipped so it cannot block the rest of the sweep.
func (s *EscrowServiceImpl) ReleaseExpired(ctx context.Context, batchSize int) (int, error) {
	now := time.Now().UTC()
	expired, err := s.orderRepo.ListExpiredEscrow(ctx, now, batchSize)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list expired escrow: %w", err))
	}

	released := 0
	for i := range expired {
		order := &expired[i]
		if err := s.release(ctx, order, domain.ReleaseAutoExpired, now, nil, nil); err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("auto release failed, skipping order")
			continue
		}
		released++
	}

	if released > 0 {
		s.log.Info().Int("released", released).Int("candidates", len(expired)).Msg("expired escrow sweep complete")
	}
	return released, nil
}

// Status returns the escrow projection for one order without mutating it.
func (s *EscrowServiceImpl) Status(ctx context.Context, orderID uuid.UUID) (*ports.EscrowStatusView, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	return s.view(order, time.Now().UTC()), nil
}

// release performs the guarded transition and the seller payout in one
// transaction. A false guard result means another release already won.
func (s *EscrowServiceImpl) release(ctx context.Context, order *domain.Order, via domain.ReleaseVia, at time.Time, rating *int, notes *string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	released, err := s.orderRepo.Release(ctx, dbTx, order.ID, via, at, rating, notes)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("release escrow: %w", err))
	}
	if !released {
		return apperror.ErrEscrowAlreadyReleased()
	}

	if _, err := s.ledger.Credit(ctx, dbTx, order.SellerID, order.SellerReceives()); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit escrow release: %w", err))
	}

	if s.publisher != nil {
		releasedOrder := *order
		releasedOrder.EscrowState = domain.EscrowReleased
		releasedOrder.ReleasedVia = &via
		releasedOrder.ReleasedAt = &at
		if err := s.publisher.PublishEscrowReleased(ctx, &releasedOrder); err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("could not publish escrow released event")
		}
	}
	return nil
}

func (s *EscrowServiceImpl) view(order *domain.Order, now time.Time) *ports.EscrowStatusView {
	var hoursRemaining float64
	if order.InEscrow() {
		if remaining := order.InspectionDeadline.Sub(now); remaining > 0 {
			hoursRemaining = remaining.Hours()
		}
	}
	return &ports.EscrowStatusView{
		OrderID:           order.ID,
		ShippingMethod:    order.ShippingMethod,
		EscrowReleased:    !order.InEscrow(),
		ReleasedVia:       order.ReleasedVia,
		HoursRemaining:    hoursRemaining,
		QualityRating:     order.QualityRating,
		CanConfirmQuality: order.CanConfirmQuality(),
	}
}
