package postgres

import (
	"context"
	"testing"
	"time"

	"marketplace-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIntent() *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:            uuid.New(),
		Reference:     domain.NewReference(),
		UserID:        uuid.New(),
		Email:         "ada@example.com",
		Amount:        853700,
		Method:        domain.MethodCard,
		Purpose:       domain.PurposeCartPayment,
		Status:        domain.IntentPending,
		ServiceFee:    21313,
		ShippingFee:   1000,
		InsuranceFee:  200,
		CardPortion:   853700,
		Metadata:      []byte(`{"items":[]}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func intentColumns() []string {
	return []string{
		"id", "reference", "user_id", "email", "amount", "method", "purpose", "status",
		"service_fee", "shipping_fee", "insurance_fee", "wallet_portion", "card_portion",
		"metadata", "gateway_response", "created_at", "paid_at",
	}
}

func intentRow(i *domain.PaymentIntent) *pgxmock.Rows {
	return pgxmock.NewRows(intentColumns()).AddRow(
		i.ID, i.Reference, i.UserID, i.Email, i.Amount, i.Method, i.Purpose, i.Status,
		i.ServiceFee, i.ShippingFee, i.InsuranceFee, i.WalletPortion, i.CardPortion,
		i.Metadata, i.GatewayResponse, i.CreatedAt, i.PaidAt,
	)
}

func TestIntentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIntentRepo(mock)
	intent := newTestIntent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_intents").
		WithArgs(
			intent.ID, intent.Reference, intent.UserID, intent.Email, intent.Amount,
			intent.Method, intent.Purpose, intent.Status,
			intent.ServiceFee, intent.ShippingFee, intent.InsuranceFee,
			intent.WalletPortion, intent.CardPortion,
			intent.Metadata, intent.GatewayResponse, intent.CreatedAt, intent.PaidAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, intent)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntentRepo_GetByReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIntentRepo(mock)
	intent := newTestIntent()

	mock.ExpectQuery("SELECT (.+) FROM payment_intents WHERE reference").
		WithArgs(intent.Reference).
		WillReturnRows(intentRow(intent))

	got, err := repo.GetByReference(context.Background(), intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, intent.Amount, got.Amount)
	assert.Equal(t, domain.IntentPending, got.Status)
}

func TestIntentRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIntentRepo(mock)

	mock.ExpectQuery("SELECT (.+) FROM payment_intents WHERE reference").
		WithArgs("MKT-missing").
		WillReturnRows(pgxmock.NewRows(intentColumns()))

	got, err := repo.GetByReference(context.Background(), "MKT-missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIntentRepo_MarkSuccess_Transitions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIntentRepo(mock)
	paidAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payment_intents").
		WithArgs(domain.IntentSuccess, paidAt, "raw-body", "MKT-ok", domain.IntentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	transitioned, err := repo.MarkSuccess(context.Background(), tx, "MKT-ok", paidAt, "raw-body")
	require.NoError(t, err)
	assert.True(t, transitioned)
}

func TestIntentRepo_MarkSuccess_DuplicateMatchesNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIntentRepo(mock)
	paidAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payment_intents").
		WithArgs(domain.IntentSuccess, paidAt, "raw-body", "MKT-dup", domain.IntentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	transitioned, err := repo.MarkSuccess(context.Background(), tx, "MKT-dup", paidAt, "raw-body")
	require.NoError(t, err)
	assert.False(t, transitioned)
}

func TestIntentRepo_MarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIntentRepo(mock)

	mock.ExpectExec("UPDATE payment_intents").
		WithArgs(domain.IntentFailed, "charge.failed", "MKT-f", domain.IntentPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	transitioned, err := repo.MarkFailed(context.Background(), "MKT-f", "charge.failed")
	require.NoError(t, err)
	assert.True(t, transitioned)
}
