package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallCheckout is a self-arranged cart totalling exactly amount, with no
// shipping, insurance, or service fee.
func smallCheckout(amount int64) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"items": []map[string]interface{}{{
			"product_id": uuid.New().String(),
			"seller_id":  uuid.New().String(),
			"title":      "Paperback",
			"unit_price": amount,
			"quantity":   1,
		}},
		"shipping_tier": "self-arranged",
		"shipping_fee":  0,
		"insurance_fee": 0,
		"total_amount":  amount,
		"service_fee":   0,
	})
	return body
}

// TestConcurrentWalletPayments fires many simultaneous wallet payments
// against one funded wallet. With real PostgreSQL + SELECT FOR UPDATE the
// row lock serializes the debits and exactly balance/amount requests
// succeed. The in-memory repos have no row-level locks, so lost updates can
// let extra requests through — the invariant that must still hold is that
// the balance is never observed negative.
func TestConcurrentWalletPayments(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 100000)
	token := app.token(t, buyerID)

	concurrency := 20
	paymentAmount := int64(10000)

	var wg sync.WaitGroup
	var successCount, failCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/pay/cart/wallet",
				bytes.NewReader(smallCheckout(paymentAmount)))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			r, err := http.DefaultClient.Do(req)
			if err != nil {
				failCount.Add(1)
				return
			}
			r.Body.Close()

			if r.StatusCode == http.StatusCreated {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()

	t.Logf("Concurrent payments: %d succeeded, %d failed (out of %d)",
		successCount.Load(), failCount.Load(), concurrency)

	assert.Equal(t, int64(concurrency), successCount.Load()+failCount.Load(),
		"all requests should complete")
	assert.GreaterOrEqual(t, app.balance(t, buyerID), int64(0),
		"balance must never go negative")
}

// TestConcurrentWebhookDeliveries fires the same gateway confirmation many
// times at once. The guarded pending→success transition is atomic even in
// the in-memory repo, so exactly one delivery settles: one order set, one
// wallet debit. Every delivery must still be acknowledged with a 2xx so the
// gateway stops redelivering.
func TestConcurrentWebhookDeliveries(t *testing.T) {
	app := newTestApp(t)

	buyerID := uuid.New()
	app.fund(t, buyerID, 5000)
	token := app.token(t, buyerID)

	body, _ := json.Marshal(checkout())
	resp, decoded := app.post(t, "/api/v1/pay/cart/hybrid", token, body)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reference := decoded["data"].(map[string]interface{})["reference"].(string)

	event := []byte(fmt.Sprintf(
		`{"event":"charge.success","data":{"reference":"%s","amount":%d,"status":"success"}}`,
		reference, 848700*100))
	signature := sign(event)

	concurrency := 20
	var wg sync.WaitGroup
	var acked atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/webhook/gateway",
				bytes.NewReader(event))
			req.Header.Set("X-Gateway-Signature", signature)

			r, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			r.Body.Close()
			if r.StatusCode == http.StatusOK {
				acked.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(concurrency), acked.Load(), "every delivery must be acknowledged")

	// Exactly one settlement: one order set, wallet portion debited once.
	orders, err := app.orderRepo.ListByReference(context.Background(), reference)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, int64(0), app.balance(t, buyerID))

	intent, err := app.intentRepo.GetByReference(context.Background(), reference)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentSuccess, intent.Status)

	// Late straggler long after settlement is still just acknowledged.
	time.Sleep(10 * time.Millisecond)
	lateResp := app.deliverWebhook(t, event, signature)
	assert.Equal(t, http.StatusOK, lateResp.StatusCode)
}
