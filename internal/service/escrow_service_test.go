package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports/mocks"
	"marketplace-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type escrowTestDeps struct {
	svc        *EscrowServiceImpl
	orderRepo  *mocks.MockOrderRepository
	ledger     *mocks.MockWalletLedger
	publisher  *mocks.MockEventPublisher
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupEscrowService(t *testing.T) *escrowTestDeps {
	ctrl := gomock.NewController(t)
	d := &escrowTestDeps{
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		ledger:     mocks.NewMockWalletLedger(ctrl),
		publisher:  mocks.NewMockEventPublisher(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewEscrowService(d.orderRepo, d.ledger, d.publisher, d.transactor, zerolog.Nop())
	return d
}

func escrowOrder(buyerID, sellerID uuid.UUID) *domain.Order {
	return &domain.Order{
		ID:                 uuid.New(),
		BuyerID:            buyerID,
		SellerID:           sellerID,
		ProductTitle:       "Office chair",
		Quantity:           1,
		UnitPrice:          852500,
		TotalAmount:        853700,
		ServiceFee:         21313,
		ShippingFee:        1200,
		ShippingMethod:     domain.ShippingCarrier,
		Reference:          "MKT-esc",
		Status:             domain.OrderPaid,
		EscrowState:        domain.EscrowHeld,
		InspectionDeadline: time.Now().UTC().Add(48 * time.Hour),
		PaidAt:             time.Now().UTC().Add(-24 * time.Hour),
	}
}

func TestEscrowService_ConfirmQuality_Success(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	order := escrowOrder(buyerID, sellerID)
	tx := &mockTx{}

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().Release(ctx, tx, order.ID, domain.ReleaseBuyerConfirmed, gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	// Payout is item value minus service fee; shipping is pass-through.
	d.ledger.EXPECT().Credit(ctx, tx, sellerID, int64(831187)).Return(int64(831187), nil)
	d.publisher.EXPECT().PublishEscrowReleased(ctx, gomock.Any()).Return(nil)

	view, err := d.svc.ConfirmQuality(ctx, order.ID, buyerID, 5, nil)
	require.NoError(t, err)
	assert.True(t, view.EscrowReleased)
	assert.False(t, view.CanConfirmQuality)
	require.NotNil(t, view.ReleasedVia)
	assert.Equal(t, domain.ReleaseBuyerConfirmed, *view.ReleasedVia)
	require.NotNil(t, view.QualityRating)
	assert.Equal(t, 5, *view.QualityRating)
}

func TestEscrowService_ConfirmQuality_InvalidRating(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	for _, rating := range []int{0, 6, -1} {
		_, err := d.svc.ConfirmQuality(context.Background(), uuid.New(), uuid.New(), rating, nil)
		require.Error(t, err)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "ESC_002", appErr.Code)
	}
}

func TestEscrowService_ConfirmQuality_NotBuyer(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	order := escrowOrder(uuid.New(), uuid.New())

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	_, err := d.svc.ConfirmQuality(ctx, order.ID, uuid.New(), 4, nil)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ESC_003", appErr.Code)
}

func TestEscrowService_ConfirmQuality_AlreadyReleased(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := escrowOrder(buyerID, uuid.New())
	via := domain.ReleaseBuyerConfirmed
	order.EscrowState = domain.EscrowReleased
	order.ReleasedVia = &via

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	_, err := d.svc.ConfirmQuality(ctx, order.ID, buyerID, 4, nil)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ESC_001", appErr.Code)
}

func TestEscrowService_ConfirmQuality_LosesReleaseRace(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	buyerID := uuid.New()
	order := escrowOrder(buyerID, uuid.New())
	tx := &mockTx{}

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// Guard reports the order was released between the read and the update.
	// No credit happens.
	d.orderRepo.EXPECT().Release(ctx, tx, order.ID, domain.ReleaseBuyerConfirmed, gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)

	_, err := d.svc.ConfirmQuality(ctx, order.ID, buyerID, 4, nil)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ESC_001", appErr.Code)
}

func TestEscrowService_ReleaseExpired_Sweep(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerA := uuid.New()
	sellerB := uuid.New()
	orderA := escrowOrder(uuid.New(), sellerA)
	orderB := escrowOrder(uuid.New(), sellerB)
	tx := &mockTx{}

	d.orderRepo.EXPECT().ListExpiredEscrow(ctx, gomock.Any(), 100).Return([]domain.Order{*orderA, *orderB}, nil)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.orderRepo.EXPECT().Release(ctx, tx, orderA.ID, domain.ReleaseAutoExpired, gomock.Any(), gomock.Nil(), gomock.Nil()).Return(true, nil)
	d.orderRepo.EXPECT().Release(ctx, tx, orderB.ID, domain.ReleaseAutoExpired, gomock.Any(), gomock.Nil(), gomock.Nil()).Return(true, nil)
	d.ledger.EXPECT().Credit(ctx, tx, sellerA, int64(831187)).Return(int64(831187), nil)
	d.ledger.EXPECT().Credit(ctx, tx, sellerB, int64(831187)).Return(int64(831187), nil)
	d.publisher.EXPECT().PublishEscrowReleased(ctx, gomock.Any()).Return(nil).Times(2)

	released, err := d.svc.ReleaseExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, released)
}

func TestEscrowService_ReleaseExpired_SkipsFailures(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerB := uuid.New()
	orderA := escrowOrder(uuid.New(), uuid.New())
	orderB := escrowOrder(uuid.New(), sellerB)
	tx := &mockTx{}

	d.orderRepo.EXPECT().ListExpiredEscrow(ctx, gomock.Any(), 50).Return([]domain.Order{*orderA, *orderB}, nil)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.orderRepo.EXPECT().Release(ctx, tx, orderA.ID, domain.ReleaseAutoExpired, gomock.Any(), gomock.Nil(), gomock.Nil()).Return(false, errors.New("deadlock"))
	d.orderRepo.EXPECT().Release(ctx, tx, orderB.ID, domain.ReleaseAutoExpired, gomock.Any(), gomock.Nil(), gomock.Nil()).Return(true, nil)
	d.ledger.EXPECT().Credit(ctx, tx, sellerB, int64(831187)).Return(int64(831187), nil)
	d.publisher.EXPECT().PublishEscrowReleased(ctx, gomock.Any()).Return(nil)

	released, err := d.svc.ReleaseExpired(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestEscrowService_Status(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	order := escrowOrder(uuid.New(), uuid.New())

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	view, err := d.svc.Status(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, view.EscrowReleased)
	assert.True(t, view.CanConfirmQuality)
	assert.InDelta(t, 48, view.HoursRemaining, 0.1)
	assert.Equal(t, domain.ShippingCarrier, view.ShippingMethod)
}

func TestEscrowService_Status_NotFound(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()

	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(nil, nil)

	_, err := d.svc.Status(ctx, orderID)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}
