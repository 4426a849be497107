package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet // keyed by user ID
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID == walletID {
			w.Balance = newBalance
			w.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("wallet not found")
}

func (r *inMemoryWalletRepo) AddBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		w = &domain.Wallet{ID: uuid.New(), UserID: userID, CreatedAt: time.Now()}
		r.wallets[userID] = w
	}
	w.Balance += amount
	w.UpdatedAt = time.Now()
	return w.Balance, nil
}

// --- In-Memory Intent Repo ---

type inMemoryIntentRepo struct {
	mu      sync.Mutex
	intents map[string]*domain.PaymentIntent // keyed by reference
}

func newInMemoryIntentRepo() *inMemoryIntentRepo {
	return &inMemoryIntentRepo{intents: make(map[string]*domain.PaymentIntent)}
}

func (r *inMemoryIntentRepo) Create(ctx context.Context, tx pgx.Tx, intent *domain.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.intents[intent.Reference]; exists {
		return fmt.Errorf("duplicate reference")
	}
	cp := *intent
	r.intents[intent.Reference] = &cp
	return nil
}

func (r *inMemoryIntentRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.intents[reference]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryIntentRepo) MarkSuccess(ctx context.Context, tx pgx.Tx, reference string, paidAt time.Time, gatewayResponse string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.intents[reference]
	if !ok || p.Status != domain.IntentPending {
		return false, nil
	}
	p.Status = domain.IntentSuccess
	p.PaidAt = &paidAt
	p.GatewayResponse = &gatewayResponse
	return true, nil
}

func (r *inMemoryIntentRepo) MarkFailed(ctx context.Context, reference string, gatewayResponse string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.intents[reference]
	if !ok || p.Status != domain.IntentPending {
		return false, nil
	}
	p.Status = domain.IntentFailed
	p.GatewayResponse = &gatewayResponse
	return true, nil
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*domain.Order)}
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOrderRepo) ListByReference(ctx context.Context, reference string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.Reference == reference {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *inMemoryOrderRepo) ListExpiredEscrow(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, o := range r.orders {
		if o.EscrowState == domain.EscrowHeld && o.Status != domain.OrderCancelled && !o.InspectionDeadline.After(now) {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *inMemoryOrderRepo) Release(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, via domain.ReleaseVia, releasedAt time.Time, rating *int, notes *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.EscrowState != domain.EscrowHeld {
		return false, nil
	}
	o.EscrowState = domain.EscrowReleased
	o.ReleasedVia = &via
	o.ReleasedAt = &releasedAt
	o.QualityRating = rating
	o.QualityNotes = notes
	o.UpdatedAt = releasedAt
	return true, nil
}

func (r *inMemoryOrderRepo) SetDispatched(ctx context.Context, orderID uuid.UUID, shipmentID, trackingCode, trackingURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found")
	}
	o.ShipmentID = &shipmentID
	o.TrackingCode = &trackingCode
	o.TrackingURL = &trackingURL
	o.Status = domain.OrderShipped
	return nil
}

// --- In-Memory Shipment Outbox Repo ---

type inMemoryOutboxRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.ShipmentOutbox
}

func newInMemoryOutboxRepo() *inMemoryOutboxRepo {
	return &inMemoryOutboxRepo{entries: make(map[uuid.UUID]*domain.ShipmentOutbox)}
}

func (r *inMemoryOutboxRepo) Enqueue(ctx context.Context, tx pgx.Tx, entry *domain.ShipmentOutbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *inMemoryOutboxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ShipmentOutbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ShipmentOutbox
	for _, e := range r.entries {
		if e.Status != domain.ShipmentPending {
			continue
		}
		if e.NextRetryAt != nil && e.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *inMemoryOutboxRepo) MarkDispatched(ctx context.Context, id uuid.UUID, shipmentID, trackingCode, trackingURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("outbox entry not found")
	}
	e.Status = domain.ShipmentDispatched
	e.ShipmentID = &shipmentID
	e.TrackingCode = &trackingCode
	e.TrackingURL = &trackingURL
	return nil
}

func (r *inMemoryOutboxRepo) MarkRetry(ctx context.Context, id uuid.UUID, attempt int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("outbox entry not found")
	}
	e.Attempt = attempt
	e.NextRetryAt = &nextRetryAt
	e.LastError = &lastError
	return nil
}

func (r *inMemoryOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("outbox entry not found")
	}
	e.Status = domain.ShipmentFailed
	e.LastError = &lastError
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *noopTx) Conn() *pgx.Conn                                              { return nil }
