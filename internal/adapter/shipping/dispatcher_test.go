package shipping

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type dispatcherDeps struct {
	d          *Dispatcher
	outboxRepo *mocks.MockShipmentOutboxRepository
	orderRepo  *mocks.MockOrderRepository
	carrier    *mocks.MockShippingClient
	ctrl       *gomock.Controller
}

func setupDispatcher(t *testing.T) *dispatcherDeps {
	ctrl := gomock.NewController(t)
	deps := &dispatcherDeps{
		outboxRepo: mocks.NewMockShipmentOutboxRepository(ctrl),
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		carrier:    mocks.NewMockShippingClient(ctrl),
		ctrl:       ctrl,
	}
	deps.d = NewDispatcher(deps.outboxRepo, deps.orderRepo, deps.carrier, time.Second, 5, zerolog.Nop())
	return deps
}

func outboxFixture() (*domain.Order, domain.ShipmentOutbox) {
	order := &domain.Order{
		ID:           uuid.New(),
		Reference:    "MKT-ship",
		ProductTitle: "Office chair",
		ShipTo:       &domain.Address{Name: "Ada", Line1: "5 Broad St", City: "Lagos", State: "LA", Country: "NG"},
	}
	entry := domain.ShipmentOutbox{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Reference: order.Reference,
		Status:    domain.ShipmentPending,
	}
	return order, entry
}

func TestDispatcher_RunOnce_Dispatches(t *testing.T) {
	deps := setupDispatcher(t)
	defer deps.ctrl.Finish()

	ctx := context.Background()
	order, entry := outboxFixture()

	deps.outboxRepo.EXPECT().ListDue(ctx, gomock.Any(), 50).Return([]domain.ShipmentOutbox{entry}, nil)
	deps.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	deps.carrier.EXPECT().CreateShipment(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.ShipmentRequest) (*ports.ShipmentInfo, error) {
			assert.Equal(t, order.ID, req.OrderID)
			assert.Equal(t, "Ada", req.To.Name)
			return &ports.ShipmentInfo{ShipmentID: "SHP-1", TrackingCode: "TRK-1", TrackingURL: "https://carrier.example/TRK-1"}, nil
		})
	deps.outboxRepo.EXPECT().MarkDispatched(ctx, entry.ID, "SHP-1", "TRK-1", "https://carrier.example/TRK-1").Return(nil)
	deps.orderRepo.EXPECT().SetDispatched(ctx, order.ID, "SHP-1", "TRK-1", "https://carrier.example/TRK-1").Return(nil)

	n, err := deps.d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatcher_RunOnce_SchedulesRetry(t *testing.T) {
	deps := setupDispatcher(t)
	defer deps.ctrl.Finish()

	ctx := context.Background()
	order, entry := outboxFixture()

	deps.outboxRepo.EXPECT().ListDue(ctx, gomock.Any(), 50).Return([]domain.ShipmentOutbox{entry}, nil)
	deps.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	deps.carrier.EXPECT().CreateShipment(ctx, gomock.Any()).Return(nil, errors.New("carrier timeout"))
	deps.outboxRepo.EXPECT().MarkRetry(ctx, entry.ID, 1, gomock.Any(), "carrier timeout").Return(nil)

	n, err := deps.d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_RunOnce_ExhaustsAttempts(t *testing.T) {
	deps := setupDispatcher(t)
	defer deps.ctrl.Finish()

	ctx := context.Background()
	order, entry := outboxFixture()
	entry.Attempt = 4 // next failure is the fifth and final attempt

	deps.outboxRepo.EXPECT().ListDue(ctx, gomock.Any(), 50).Return([]domain.ShipmentOutbox{entry}, nil)
	deps.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	deps.carrier.EXPECT().CreateShipment(ctx, gomock.Any()).Return(nil, errors.New("carrier down"))
	deps.outboxRepo.EXPECT().MarkFailed(ctx, entry.ID, "carrier down").Return(nil)

	n, err := deps.d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_RunOnce_MissingOrderParksEntry(t *testing.T) {
	deps := setupDispatcher(t)
	defer deps.ctrl.Finish()

	ctx := context.Background()
	_, entry := outboxFixture()

	deps.outboxRepo.EXPECT().ListDue(ctx, gomock.Any(), 50).Return([]domain.ShipmentOutbox{entry}, nil)
	deps.orderRepo.EXPECT().GetByID(ctx, entry.OrderID).Return(nil, nil)
	deps.outboxRepo.EXPECT().MarkFailed(ctx, entry.ID, gomock.Any()).Return(nil)

	n, err := deps.d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
