package handler

import (
	"time"

	"marketplace-payments/internal/adapter/http/dto"
	"marketplace-payments/internal/adapter/http/middleware"
	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/apperror"
	"marketplace-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles the cart payment endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// PayWithWallet handles POST /api/v1/pay/cart/wallet.
func (h *PaymentHandler) PayWithWallet(c *gin.Context) {
	req, ok := bindCheckout(c)
	if !ok {
		return
	}

	result, err := h.paymentSvc.PayWithWallet(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.RecordPaymentSettled(string(domain.MethodWallet))
	response.Created(c, toWalletPaymentResponse(result))
}

// PayWithCard handles POST /api/v1/pay/cart/card.
func (h *PaymentHandler) PayWithCard(c *gin.Context) {
	req, ok := bindCheckout(c)
	if !ok {
		return
	}

	result, err := h.paymentSvc.PayWithCard(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CardPaymentResponse{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
	})
}

// PayWithHybrid handles POST /api/v1/pay/cart/hybrid.
func (h *PaymentHandler) PayWithHybrid(c *gin.Context) {
	req, ok := bindCheckout(c)
	if !ok {
		return
	}

	result, err := h.paymentSvc.PayWithWalletAndCard(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.HybridPaymentResponse{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		WalletPortion:    result.WalletPortion,
		CardPortion:      result.CardPortion,
	}
	if result.Wallet != nil {
		w := toWalletPaymentResponse(result.Wallet)
		resp.Wallet = &w
		middleware.RecordPaymentSettled(string(domain.MethodWallet))
	}

	response.Created(c, resp)
}

// bindCheckout parses the request body and the authenticated identity into
// a checkout request. Returns ok=false after writing the error response.
func bindCheckout(c *gin.Context) (ports.CheckoutRequest, bool) {
	userID, email, ok := authedUser(c)
	if !ok {
		return ports.CheckoutRequest{}, false
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return ports.CheckoutRequest{}, false
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.CartItem{
			ProductID: it.ProductID,
			SellerID:  it.SellerID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	var shipTo *domain.Address
	if req.ShippingAddress != nil {
		shipTo = &domain.Address{
			Name:    req.ShippingAddress.Name,
			Phone:   req.ShippingAddress.Phone,
			Line1:   req.ShippingAddress.Line1,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			Country: req.ShippingAddress.Country,
		}
	}

	return ports.CheckoutRequest{
		UserID: userID,
		Email:  email,
		Snapshot: domain.CheckoutSnapshot{
			Items:        items,
			ShippingTier: domain.ShippingTier(req.ShippingTier),
			ShippingFee:  req.ShippingFee,
			InsuranceFee: req.InsuranceFee,
			ShipTo:       shipTo,
		},
		DeclaredTotal:      req.TotalAmount,
		DeclaredServiceFee: req.ServiceFee,
	}, true
}

// authedUser reads the authenticated identity set by the JWT middleware.
func authedUser(c *gin.Context) (uuid.UUID, string, bool) {
	uid, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, "", false
	}
	email, _ := c.Get(middleware.CtxEmail)
	emailStr, _ := email.(string)
	return uid.(uuid.UUID), emailStr, true
}

// toWalletPaymentResponse converts the wallet path result to its DTO.
func toWalletPaymentResponse(r *ports.WalletPaymentResult) dto.WalletPaymentResponse {
	orders := make([]dto.OrderResponse, 0, len(r.Orders))
	for i := range r.Orders {
		orders = append(orders, toOrderResponse(&r.Orders[i]))
	}
	return dto.WalletPaymentResponse{
		Reference:  r.Reference,
		Orders:     orders,
		NewBalance: r.NewBalance,
	}
}

// toOrderResponse converts a domain order to its DTO.
func toOrderResponse(o *domain.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:                 o.ID.String(),
		SellerID:           o.SellerID.String(),
		ProductID:          o.ProductID.String(),
		ProductTitle:       o.ProductTitle,
		Quantity:           o.Quantity,
		TotalAmount:        o.TotalAmount,
		ServiceFee:         o.ServiceFee,
		ShippingFee:        o.ShippingFee,
		ShippingMethod:     string(o.ShippingMethod),
		Status:             string(o.Status),
		EscrowState:        string(o.EscrowState),
		InspectionDeadline: o.InspectionDeadline.Format(time.RFC3339),
	}
}
