package handler

import (
	"net/http"

	"marketplace-payments/internal/adapter/http/dto"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet read endpoints.
type WalletHandler struct {
	ledger ports.WalletLedger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.WalletLedger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// GetBalance handles GET /api/v1/wallet/balance. Missing wallets read as a
// zero balance rather than 404.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, _, ok := authedUser(c)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletBalanceResponse{
		Balance:  balance,
		Currency: "NGN",
	})
}

// HealthCheck handles GET /health — deep health check verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
