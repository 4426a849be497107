package shipping

import (
	"context"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"

	"github.com/rs/zerolog"
)

// retryIntervals spaces out redelivery attempts to the carrier. After the
// last interval the entry is marked permanently failed for manual review.
var retryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

// Dispatcher works off the shipment outbox. Entries are written in the
// same transaction as their orders, so a crash between payment and
// dispatch loses nothing: the next poll picks the entry up again.
type Dispatcher struct {
	outboxRepo   ports.ShipmentOutboxRepository
	orderRepo    ports.OrderRepository
	carrier      ports.ShippingClient
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	log          zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	outboxRepo ports.ShipmentOutboxRepository,
	orderRepo ports.OrderRepository,
	carrier ports.ShippingClient,
	pollInterval time.Duration,
	maxAttempts int,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		outboxRepo:   outboxRepo,
		orderRepo:    orderRepo,
		carrier:      carrier,
		pollInterval: pollInterval,
		batchSize:    50,
		maxAttempts:  maxAttempts,
		log:          log,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.log.Info().Dur("poll_interval", d.pollInterval).Msg("shipment dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("shipment dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.log.Error().Err(err).Msg("dispatch cycle failed")
			}
		}
	}
}

// RunOnce processes one batch of due outbox entries and returns how many
// shipments were booked.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	due, err := d.outboxRepo.ListDue(ctx, time.Now().UTC(), d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due shipments: %w", err)
	}

	dispatched := 0
	for i := range due {
		if err := d.dispatch(ctx, &due[i]); err != nil {
			d.log.Warn().Err(err).Str("order_id", due[i].OrderID.String()).Int("attempt", due[i].Attempt+1).Msg("shipment dispatch attempt failed")
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, entry *domain.ShipmentOutbox) error {
	order, err := d.orderRepo.GetByID(ctx, entry.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.ShipTo == nil {
		// Nothing dispatchable; park the entry so it stops cycling.
		if markErr := d.outboxRepo.MarkFailed(ctx, entry.ID, "order missing or has no shipping address"); markErr != nil {
			return markErr
		}
		return fmt.Errorf("order %s not dispatchable", entry.OrderID)
	}

	info, err := d.carrier.CreateShipment(ctx, ports.ShipmentRequest{
		OrderID:     order.ID,
		Reference:   order.Reference,
		To:          *order.ShipTo,
		Description: order.ProductTitle,
	})
	if err != nil {
		return d.recordFailure(ctx, entry, err)
	}

	if err := d.outboxRepo.MarkDispatched(ctx, entry.ID, info.ShipmentID, info.TrackingCode, info.TrackingURL); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	if err := d.orderRepo.SetDispatched(ctx, order.ID, info.ShipmentID, info.TrackingCode, info.TrackingURL); err != nil {
		return fmt.Errorf("stamp order tracking: %w", err)
	}

	d.log.Info().
		Str("order_id", order.ID.String()).
		Str("tracking_code", info.TrackingCode).
		Msg("shipment dispatched")
	return nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, entry *domain.ShipmentOutbox, cause error) error {
	attempt := entry.Attempt + 1
	if attempt >= d.maxAttempts {
		if err := d.outboxRepo.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
			return err
		}
		d.log.Error().Err(cause).Str("order_id", entry.OrderID.String()).Msg("shipment permanently failed, manual intervention required")
		return cause
	}

	interval := retryIntervals[len(retryIntervals)-1]
	if attempt-1 < len(retryIntervals) {
		interval = retryIntervals[attempt-1]
	}
	nextRetry := time.Now().UTC().Add(interval)
	if err := d.outboxRepo.MarkRetry(ctx, entry.ID, attempt, nextRetry, cause.Error()); err != nil {
		return err
	}
	return cause
}
