package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New("VAL_001", "bad input", http.StatusBadRequest)
	assert.Equal(t, "[VAL_001] bad input", e.Error())

	wrapped := Wrap("SYS_001", "internal", http.StatusInternalServerError, fmt.Errorf("db down"))
	assert.Contains(t, wrapped.Error(), "db down")
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	e := InternalError(inner)
	assert.True(t, errors.Is(e, inner))
}

func TestErrInsufficientFunds_Detail(t *testing.T) {
	e := ErrInsufficientFunds(12000, 5000)
	assert.Equal(t, "PAY_001", e.Code)
	assert.Equal(t, http.StatusPaymentRequired, e.HTTPStatus)
	assert.Contains(t, e.Message, "required 12000")
	assert.Contains(t, e.Message, "available 5000")
	assert.Contains(t, e.Message, "shortfall 7000")
}

func TestErrTotalMismatch_NeverSilent(t *testing.T) {
	e := ErrTotalMismatch(853700, 853699)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus)
	assert.Contains(t, e.Message, "853700")
	assert.Contains(t, e.Message, "853699")
}

func TestSecurityErrors_Status(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidGatewaySignature().HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidToken().HTTPStatus)
	assert.Equal(t, http.StatusForbidden, ErrNotOrderBuyer().HTTPStatus)
	assert.Equal(t, http.StatusConflict, ErrEscrowAlreadyReleased().HTTPStatus)
}
