package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// processedTTL bounds the Redis replay-detection entry. The intent row in
// the database is the durable guard; the cache only saves a round trip.
const processedTTL = 24 * time.Hour

// minorUnitFactor converts whole currency units to the gateway's minor
// unit (naira to kobo).
const minorUnitFactor = 100

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	intentRepo ports.IntentRepository
	ledger     ports.WalletLedger
	orders     ports.OrderFactory
	gateway    ports.GatewayClient
	eventCache ports.ProcessedEventCache
	publisher  ports.EventPublisher
	transactor ports.DBTransactor
	feePolicy  domain.FeePolicy
	log        zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	intentRepo ports.IntentRepository,
	ledger ports.WalletLedger,
	orders ports.OrderFactory,
	gateway ports.GatewayClient,
	eventCache ports.ProcessedEventCache,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	feePolicy domain.FeePolicy,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		intentRepo: intentRepo,
		ledger:     ledger,
		orders:     orders,
		gateway:    gateway,
		eventCache: eventCache,
		publisher:  publisher,
		transactor: transactor,
		feePolicy:  feePolicy,
		log:        log,
	}
}

// validateCheckout re-prices the cart server-side and rejects any checkout
// whose declared totals disagree with the computed ones. Client-supplied
// amounts are never trusted.
func (s *PaymentServiceImpl) validateCheckout(req ports.CheckoutRequest) (domain.FeeBreakdown, error) {
	snapshot := req.Snapshot
	if len(snapshot.Items) == 0 {
		return domain.FeeBreakdown{}, apperror.ErrEmptyCart()
	}
	if !snapshot.ShippingTier.Valid() {
		return domain.FeeBreakdown{}, apperror.Validation(fmt.Sprintf("unknown shipping tier %q", snapshot.ShippingTier))
	}
	for _, item := range snapshot.Items {
		if item.UnitPrice <= 0 || item.Quantity <= 0 {
			return domain.FeeBreakdown{}, apperror.ErrInvalidAmount()
		}
	}
	if snapshot.ShippingTier.Method() == domain.ShippingCarrier && snapshot.ShipTo == nil {
		return domain.FeeBreakdown{}, apperror.ErrMissingShippingAddress()
	}

	fees, err := domain.ComputeFees(s.feePolicy, snapshot.BaseAmount(), snapshot.ShippingTier, snapshot.ShippingFee, snapshot.InsuranceFee)
	if err != nil {
		return domain.FeeBreakdown{}, apperror.Validation(err.Error())
	}
	if req.DeclaredTotal != fees.Total {
		return domain.FeeBreakdown{}, apperror.ErrTotalMismatch(req.DeclaredTotal, fees.Total)
	}
	if req.DeclaredServiceFee != fees.ServiceFee {
		return domain.FeeBreakdown{}, apperror.ErrServiceFeeMismatch(req.DeclaredServiceFee, fees.ServiceFee)
	}
	return fees, nil
}

// PayWithWallet settles a checkout synchronously from the buyer's wallet.
// Debit, intent and orders commit in one transaction; a failure at any
// point leaves no partial state.
func (s *PaymentServiceImpl) PayWithWallet(ctx context.Context, req ports.CheckoutRequest) (*ports.WalletPaymentResult, error) {
	fees, err := s.validateCheckout(req)
	if err != nil {
		return nil, err
	}

	reference := domain.NewReference()
	now := time.Now().UTC()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	newBalance, err := s.ledger.Debit(ctx, dbTx, req.UserID, fees.Total)
	if err != nil {
		return nil, err
	}

	intent := s.newIntent(req, fees, reference, domain.MethodWallet)
	intent.Status = domain.IntentSuccess
	intent.WalletPortion = fees.Total
	intent.PaidAt = &now
	if err := s.intentRepo.Create(ctx, dbTx, intent); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create intent: %w", err))
	}

	orders, err := s.orders.CreateForPayment(ctx, dbTx, ports.CreateOrdersParams{
		BuyerID:   req.UserID,
		Snapshot:  req.Snapshot,
		Fees:      fees,
		Reference: reference,
		Method:    domain.MethodWallet,
		PaidAt:    now,
	})
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit wallet payment: %w", err))
	}

	s.log.Info().
		Str("reference", reference).
		Str("user_id", req.UserID.String()).
		Int64("amount", fees.Total).
		Msg("wallet payment settled")

	s.publishOrderPaid(ctx, reference, orders)

	return &ports.WalletPaymentResult{Reference: reference, Orders: orders, NewBalance: newBalance}, nil
}

// PayWithCard records a pending intent with the full checkout snapshot and
// opens a hosted gateway session. No funds move and no orders exist until
// the gateway confirms via webhook.
func (s *PaymentServiceImpl) PayWithCard(ctx context.Context, req ports.CheckoutRequest) (*ports.CardPaymentResult, error) {
	fees, err := s.validateCheckout(req)
	if err != nil {
		return nil, err
	}

	reference := domain.NewReference()
	intent := s.newIntent(req, fees, reference, domain.MethodCard)
	intent.CardPortion = fees.Total

	if err := s.createPendingIntent(ctx, intent); err != nil {
		return nil, err
	}

	session, err := s.gateway.Initialize(ctx, req.Email, fees.Total*minorUnitFactor, reference, map[string]string{
		"purpose": string(intent.Purpose),
	})
	if err != nil {
		s.failIntent(ctx, reference, "gateway initialization failed")
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	s.log.Info().
		Str("reference", reference).
		Str("user_id", req.UserID.String()).
		Int64("amount", fees.Total).
		Msg("card payment session opened")

	return &ports.CardPaymentResult{Reference: reference, AuthorizationURL: session.AuthorizationURL}, nil
}

// PayWithWalletAndCard splits the total between the wallet and the card.
// The wallet portion is reserved logically but not debited here: the debit
// is deferred to webhook time so a failed or abandoned card leg never
// strands wallet money. When the wallet alone covers the total the payment
// degenerates to the plain wallet path.
func (s *PaymentServiceImpl) PayWithWalletAndCard(ctx context.Context, req ports.CheckoutRequest) (*ports.HybridPaymentResult, error) {
	fees, err := s.validateCheckout(req)
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	walletPortion := balance
	if walletPortion > fees.Total {
		walletPortion = fees.Total
	}
	cardPortion := fees.Total - walletPortion

	if cardPortion <= 0 {
		walletResult, err := s.PayWithWallet(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ports.HybridPaymentResult{
			Reference:     walletResult.Reference,
			WalletPortion: fees.Total,
			Wallet:        walletResult,
		}, nil
	}

	reference := domain.NewReference()
	intent := s.newIntent(req, fees, reference, domain.MethodHybrid)
	intent.Purpose = domain.PurposeHybridPayment
	intent.WalletPortion = walletPortion
	intent.CardPortion = cardPortion

	if err := s.createPendingIntent(ctx, intent); err != nil {
		return nil, err
	}

	session, err := s.gateway.Initialize(ctx, req.Email, cardPortion*minorUnitFactor, reference, map[string]string{
		"purpose":        string(domain.PurposeHybridPayment),
		"wallet_portion": fmt.Sprintf("%d", walletPortion),
	})
	if err != nil {
		s.failIntent(ctx, reference, "gateway initialization failed")
		return nil, apperror.ErrGatewayUnavailable(err)
	}

	s.log.Info().
		Str("reference", reference).
		Str("user_id", req.UserID.String()).
		Int64("wallet_portion", walletPortion).
		Int64("card_portion", cardPortion).
		Msg("hybrid payment session opened")

	return &ports.HybridPaymentResult{
		Reference:        reference,
		AuthorizationURL: session.AuthorizationURL,
		WalletPortion:    walletPortion,
		CardPortion:      cardPortion,
	}, nil
}

// HandleGatewayEvent processes one webhook delivery. The transition from
// pending to success is guarded in the database, so duplicated and
// concurrent deliveries for one reference create orders exactly once.
// Returning an error makes the HTTP layer answer non-2xx, which is the
// signal for the gateway to redeliver.
func (s *PaymentServiceImpl) HandleGatewayEvent(ctx context.Context, rawBody []byte, signature string) error {
	if !s.gateway.VerifySignature(rawBody, signature) {
		return apperror.ErrInvalidGatewaySignature()
	}

	var event ports.GatewayEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return apperror.Validation("malformed webhook payload")
	}
	reference := event.Data.Reference
	if reference == "" {
		return apperror.Validation("webhook payload missing reference")
	}

	// Redis fast path. A cache error only costs us the shortcut.
	seen, err := s.eventCache.Seen(ctx, reference)
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("replay cache check failed, falling through to DB")
	}
	if seen {
		s.log.Info().Str("reference", reference).Msg("duplicate webhook ignored via cache")
		return nil
	}

	intent, err := s.intentRepo.GetByReference(ctx, reference)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get intent: %w", err))
	}
	if intent == nil {
		return apperror.ErrNotFound("payment intent")
	}
	if intent.IsProcessed() {
		s.markSeen(ctx, reference)
		s.log.Info().Str("reference", reference).Str("status", string(intent.Status)).Msg("duplicate webhook ignored via intent status")
		return nil
	}

	if !event.Succeeded() {
		if _, err := s.intentRepo.MarkFailed(ctx, reference, event.Event); err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("mark intent failed: %w", err))
		}
		s.markSeen(ctx, reference)
		s.log.Info().Str("reference", reference).Str("event", event.Event).Msg("gateway reported charge failure")
		return nil
	}

	if event.Data.AmountMinor != intent.CardPortion*minorUnitFactor {
		return apperror.ErrAmountMismatch(intent.CardPortion*minorUnitFactor, event.Data.AmountMinor)
	}

	paidAt := time.Now().UTC()
	if event.Data.PaidAt != "" {
		if parsed, perr := time.Parse(time.RFC3339, event.Data.PaidAt); perr == nil {
			paidAt = parsed.UTC()
		}
	}

	var snapshot domain.CheckoutSnapshot
	if err := json.Unmarshal(intent.Metadata, &snapshot); err != nil {
		return apperror.InternalError(fmt.Errorf("decode checkout snapshot for %s: %w", reference, err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// The guarded update is the idempotency point: it locks the intent row
	// and only one delivery observes the pending -> success transition.
	transitioned, err := s.intentRepo.MarkSuccess(ctx, dbTx, reference, paidAt, string(rawBody))
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("mark intent success: %w", err))
	}
	if !transitioned {
		s.markSeen(ctx, reference)
		s.log.Info().Str("reference", reference).Msg("duplicate webhook lost the settlement race")
		return nil
	}

	// Deferred hybrid debit: the wallet leg moves only now that the card
	// leg is confirmed.
	if intent.Method == domain.MethodHybrid && intent.WalletPortion > 0 {
		if _, err := s.ledger.Debit(ctx, dbTx, intent.UserID, intent.WalletPortion); err != nil {
			return err
		}
	}

	orders, err := s.orders.CreateForPayment(ctx, dbTx, ports.CreateOrdersParams{
		BuyerID:   intent.UserID,
		Snapshot:  snapshot,
		Fees:      s.feesFromIntent(intent),
		Reference: reference,
		Method:    intent.Method,
		PaidAt:    paidAt,
	})
	if err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit settlement: %w", err))
	}

	s.markSeen(ctx, reference)
	s.publishOrderPaid(ctx, reference, orders)

	s.log.Info().
		Str("reference", reference).
		Str("method", string(intent.Method)).
		Int("orders", len(orders)).
		Msg("gateway payment settled")

	return nil
}

// newIntent builds the common intent fields for a validated checkout. The
// snapshot is serialized into metadata so deferred settlement replays
// exactly what was priced, immune to later cart edits.
func (s *PaymentServiceImpl) newIntent(req ports.CheckoutRequest, fees domain.FeeBreakdown, reference string, method domain.PaymentMethod) *domain.PaymentIntent {
	metadata, _ := json.Marshal(req.Snapshot)
	return &domain.PaymentIntent{
		ID:           uuid.New(),
		Reference:    reference,
		UserID:       req.UserID,
		Email:        req.Email,
		Amount:       fees.Total,
		Method:       method,
		Purpose:      domain.PurposeCartPayment,
		Status:       domain.IntentPending,
		ServiceFee:   fees.ServiceFee,
		ShippingFee:  fees.ShippingFee,
		InsuranceFee: fees.InsuranceFee,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
}

// feesFromIntent reconstructs the breakdown frozen at initiation time.
// Settlement never re-prices: a fee policy change between initiation and
// webhook must not alter what the buyer agreed to pay.
func (s *PaymentServiceImpl) feesFromIntent(intent *domain.PaymentIntent) domain.FeeBreakdown {
	base := intent.Amount - intent.ShippingFee - intent.InsuranceFee
	return domain.FeeBreakdown{
		BaseAmount:     base,
		ServiceFee:     intent.ServiceFee,
		SellerReceives: base - intent.ServiceFee,
		ShippingFee:    intent.ShippingFee,
		InsuranceFee:   intent.InsuranceFee,
		Total:          intent.Amount,
	}
}

func (s *PaymentServiceImpl) createPendingIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.intentRepo.Create(ctx, dbTx, intent); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("create intent: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit intent: %w", err))
	}
	return nil
}

// failIntent is best-effort cleanup after a gateway initialization error.
func (s *PaymentServiceImpl) failIntent(ctx context.Context, reference, reason string) {
	if _, err := s.intentRepo.MarkFailed(ctx, reference, reason); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("could not mark intent failed")
	}
}

func (s *PaymentServiceImpl) markSeen(ctx context.Context, reference string) {
	if err := s.eventCache.MarkSeen(ctx, reference, processedTTL); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("could not record processed event")
	}
}

func (s *PaymentServiceImpl) publishOrderPaid(ctx context.Context, reference string, orders []domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOrderPaid(ctx, reference, orders); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("could not publish order paid event")
	}
}
