package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-payments/internal/adapter/events"
	"marketplace-payments/internal/adapter/gateway"
	httpHandler "marketplace-payments/internal/adapter/http/handler"
	redisStorage "marketplace-payments/internal/adapter/storage/redis"
	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/internal/service"
	"marketplace-payments/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatewaySecret = "test-gateway-secret"

// testApp builds a full application stack: real HTTP layer, middleware,
// services, miniredis-backed stores, in-memory postgres repos, and a fake
// card gateway served by httptest.
type testApp struct {
	server     *httptest.Server
	gatewaySrv *httptest.Server
	redis      *miniredis.Miniredis

	walletRepo *inMemoryWalletRepo
	intentRepo *inMemoryIntentRepo
	orderRepo  *inMemoryOrderRepo
	outboxRepo *inMemoryOutboxRepo

	ledger    ports.WalletLedger
	escrowSvc ports.EscrowService
	tokenSvc  ports.TokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	// Fake card gateway: always creates a hosted session.
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reference string `json:"reference"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.test/%s","access_code":"ac_test","reference":"%s"}}`, req.Reference, req.Reference)
	}))

	log := logger.New("integration-test", "error", false)

	eventCache := redisStorage.NewEventCache(rdb)
	walletRepo := newInMemoryWalletRepo()
	intentRepo := newInMemoryIntentRepo()
	orderRepo := newInMemoryOrderRepo()
	outboxRepo := newInMemoryOutboxRepo()
	transactor := newInMemoryTransactor()

	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")
	ledger := service.NewWalletLedger(walletRepo, log)
	orderFactory := service.NewOrderFactory(orderRepo, outboxRepo, 72*time.Hour, log)
	gatewayClient := gateway.NewClient(gatewaySrv.URL, gatewaySecret, "", 5*time.Second, log)
	publisher := events.NewNopPublisher()

	paymentSvc := service.NewPaymentService(
		intentRepo, ledger, orderFactory, gatewayClient,
		eventCache, publisher, transactor, domain.DefaultFeePolicy(), log,
	)
	escrowSvc := service.NewEscrowService(orderRepo, ledger, publisher, transactor, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc: paymentSvc,
		EscrowSvc:  escrowSvc,
		Ledger:     ledger,
		TokenSvc:   tokenSvc,
		Logger:     log,
	})

	server := httptest.NewServer(router)

	app := &testApp{
		server:     server,
		gatewaySrv: gatewaySrv,
		redis:      mr,
		walletRepo: walletRepo,
		intentRepo: intentRepo,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		ledger:     ledger,
		escrowSvc:  escrowSvc,
		tokenSvc:   tokenSvc,
	}
	t.Cleanup(app.close)
	return app
}

func (a *testApp) close() {
	a.server.Close()
	a.gatewaySrv.Close()
	a.redis.Close()
}

func (a *testApp) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, _, err := a.tokenSvc.Generate(userID, "buyer@example.com")
	require.NoError(t, err)
	return token
}

func (a *testApp) fund(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	_, err := a.ledger.Credit(context.Background(), &noopTx{}, userID, amount)
	require.NoError(t, err)
}

func (a *testApp) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	balance, err := a.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func (a *testApp) post(t *testing.T, path, token string, body []byte) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// sign computes the gateway's webhook HMAC over the body.
func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(gatewaySecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *testApp) deliverWebhook(t *testing.T, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/webhook/gateway", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(httpHandler.GatewaySignatureHeader, signature)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

// checkout builds the standard single-item cart: a ₦852,500 camera with
// basic delivery, ₦1,000 shipping and ₦200 insurance.
func checkout() map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{{
			"product_id": uuid.New().String(),
			"seller_id":  uuid.New().String(),
			"title":      "Canon EOS R6",
			"unit_price": 852500,
			"quantity":   1,
		}},
		"shipping_tier": "basic-delivery",
		"shipping_fee":  1000,
		"insurance_fee": 200,
		"shipping_address": map[string]string{
			"name":    "Ada O.",
			"phone":   "+2348012345678",
			"line1":   "12 Marina Rd",
			"city":    "Lagos",
			"state":   "Lagos",
			"country": "NG",
		},
		"total_amount": 853700,
		"service_fee":  21313,
	}
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_WalletPayment(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 1000000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/wallet", token, body)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decoded["data"].(map[string]interface{})
	assert.Equal(t, float64(1000000-853700), data["new_balance"])
	assert.Equal(t, float64(1000000-853700), float64(app.balance(t, buyerID)))

	orders := data["orders"].([]interface{})
	require.Len(t, orders, 1)
	order := orders[0].(map[string]interface{})
	assert.Equal(t, "in_escrow", order["escrow_state"])
	assert.Equal(t, float64(853700), order["total_amount"])
	assert.Equal(t, float64(21313), order["service_fee"])
	assert.Equal(t, float64(1200), order["shipping_fee"])

	// Carrier delivery queues a shipment for the dispatcher.
	due, err := app.outboxRepo.ListDue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestIntegration_WalletPayment_InsufficientFunds(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 5000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/wallet", token, body)

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "PAY_001", decoded["error_code"])
	// Balance untouched.
	assert.Equal(t, int64(5000), app.balance(t, buyerID))
}

func TestIntegration_TamperedTotalRejected(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 1000000)
	token := app.token(t, buyerID)

	cart := checkout()
	cart["total_amount"] = 100 // client-declared lowball
	body, _ := json.Marshal(cart)
	resp, decoded := app.post(t, "/api/v1/pay/cart/wallet", token, body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VAL_002", decoded["error_code"])
	assert.Equal(t, int64(1000000), app.balance(t, buyerID))
}

func TestIntegration_HybridPaymentWithWebhook(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 5000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/hybrid", token, body)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decoded["data"].(map[string]interface{})
	reference := data["reference"].(string)
	assert.Equal(t, float64(5000), data["wallet_portion"])
	assert.Equal(t, float64(848700), data["card_portion"])
	assert.NotEmpty(t, data["authorization_url"])

	// Wallet untouched until the card leg confirms.
	assert.Equal(t, int64(5000), app.balance(t, buyerID))

	// No orders yet.
	orders, err := app.orderRepo.ListByReference(context.Background(), reference)
	require.NoError(t, err)
	assert.Empty(t, orders)

	// Gateway confirms the card leg.
	event := fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","amount":%d,"status":"success"}}`, reference, 848700*100)
	whResp := app.deliverWebhook(t, []byte(event), sign([]byte(event)))
	assert.Equal(t, http.StatusOK, whResp.StatusCode)

	// Wallet portion debited exactly once, orders created.
	assert.Equal(t, int64(0), app.balance(t, buyerID))
	orders, err = app.orderRepo.ListByReference(context.Background(), reference)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.EscrowHeld, orders[0].EscrowState)
	assert.Equal(t, int64(853700), orders[0].TotalAmount)

	// Redelivery is acknowledged without any double effect.
	whResp = app.deliverWebhook(t, []byte(event), sign([]byte(event)))
	assert.Equal(t, http.StatusOK, whResp.StatusCode)
	assert.Equal(t, int64(0), app.balance(t, buyerID))
	orders, err = app.orderRepo.ListByReference(context.Background(), reference)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestIntegration_WebhookBadSignature(t *testing.T) {
	app := newTestApp(t)

	event := []byte(`{"event":"charge.success","data":{"reference":"PAY-x","amount":100,"status":"success"}}`)
	resp := app.deliverWebhook(t, event, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIntegration_WebhookAmountMismatch(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/card", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reference := decoded["data"].(map[string]interface{})["reference"].(string)

	// Gateway reports a different settled amount than the intent.
	event := fmt.Sprintf(`{"event":"charge.success","data":{"reference":"%s","amount":1,"status":"success"}}`, reference)
	whResp := app.deliverWebhook(t, []byte(event), sign([]byte(event)))
	assert.Equal(t, http.StatusConflict, whResp.StatusCode)

	orders, err := app.orderRepo.ListByReference(context.Background(), reference)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestIntegration_ConfirmQualityReleasesOnce(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 1000000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/wallet", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	data := decoded["data"].(map[string]interface{})
	order := data["orders"].([]interface{})[0].(map[string]interface{})
	orderID := order["id"].(string)
	sellerID, err := uuid.Parse(order["seller_id"].(string))
	require.NoError(t, err)

	confirmBody := []byte(`{"rating":5,"notes":"exactly as described"}`)
	resp, decoded = app.post(t, "/api/v1/orders/"+orderID+"/confirm-quality", token, confirmBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decoded["data"].(map[string]interface{})
	assert.Equal(t, true, view["escrow_released"])
	assert.Equal(t, "buyer_confirmed", view["released_via"])

	// Seller paid out item value minus service fee; shipping passes through.
	assert.Equal(t, int64(853700-21313-1200), app.balance(t, sellerID))

	// Second confirmation is rejected and pays nothing again.
	resp, decoded = app.post(t, "/api/v1/orders/"+orderID+"/confirm-quality", token, confirmBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ESC_001", decoded["error_code"])
	assert.Equal(t, int64(853700-21313-1200), app.balance(t, sellerID))
}

func TestIntegration_ConfirmQualityWrongBuyer(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 1000000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/wallet", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decoded["data"].(map[string]interface{})["orders"].([]interface{})[0].(map[string]interface{})
	orderID := order["id"].(string)

	strangerToken := app.token(t, uuid.New())
	resp, decoded = app.post(t, "/api/v1/orders/"+orderID+"/confirm-quality", strangerToken, []byte(`{"rating":5}`))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ESC_003", decoded["error_code"])
}

func TestIntegration_AutoReleaseAfterDeadline(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	sellerID := uuid.New()

	// An order whose inspection window has already closed.
	deadline := time.Now().Add(-time.Hour)
	order := &domain.Order{
		ID:                 uuid.New(),
		BuyerID:            buyerID,
		SellerID:           sellerID,
		ProductID:          uuid.New(),
		ProductTitle:       "Bookshelf",
		Quantity:           1,
		UnitPrice:          40000,
		TotalAmount:        41000,
		Reference:          "PAY-expired",
		Status:             domain.OrderPaid,
		ServiceFee:         1000,
		ShippingFee:        1000,
		ShippingMethod:     domain.ShippingCarrier,
		EscrowState:        domain.EscrowHeld,
		InspectionDeadline: deadline,
		PaidAt:             deadline.Add(-72 * time.Hour),
	}
	require.NoError(t, app.orderRepo.Create(context.Background(), &noopTx{}, order))

	released, err := app.escrowSvc.ReleaseExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	got, err := app.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowReleased, got.EscrowState)
	require.NotNil(t, got.ReleasedVia)
	assert.Equal(t, domain.ReleaseAutoExpired, *got.ReleasedVia)
	assert.Equal(t, int64(41000-1000-1000), app.balance(t, sellerID))

	// Sweep is idempotent.
	released, err = app.escrowSvc.ReleaseExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestIntegration_EscrowStatusEndpoint(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 1000000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/wallet", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	order := decoded["data"].(map[string]interface{})["orders"].([]interface{})[0].(map[string]interface{})
	orderID := order["id"].(string)

	req, err := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/orders/"+orderID+"/escrow-status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()

	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var statusBody map[string]interface{}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&statusBody))
	view := statusBody["data"].(map[string]interface{})
	assert.Equal(t, false, view["escrow_released"])
	assert.Equal(t, true, view["can_confirm_quality"])
	assert.Greater(t, view["hours_remaining"].(float64), 71.0)
}
