package dto

import "github.com/google/uuid"

// CartItemRequest is one priced line item in a checkout request.
type CartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	SellerID  uuid.UUID `json:"seller_id" binding:"required"`
	Title     string    `json:"title" binding:"required,max=200"`
	UnitPrice int64     `json:"unit_price" binding:"required,gt=0"`
	Quantity  int       `json:"quantity" binding:"required,gt=0"`
}

// AddressRequest is the shipping destination for carrier delivery.
type AddressRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Phone   string `json:"phone" binding:"required,max=20"`
	Line1   string `json:"line1" binding:"required,max=200"`
	City    string `json:"city" binding:"required,max=100"`
	State   string `json:"state" binding:"required,max=100"`
	Country string `json:"country" binding:"required,max=100"`
}

// CheckoutRequest is the request body for all cart payment endpoints. The
// client declares the total and service fee it displayed; the server
// recomputes both and rejects the payment on any mismatch.
type CheckoutRequest struct {
	Items           []CartItemRequest `json:"items" binding:"required,dive"`
	ShippingTier    string            `json:"shipping_tier" binding:"required"`
	ShippingFee     int64             `json:"shipping_fee" binding:"gte=0"`
	InsuranceFee    int64             `json:"insurance_fee" binding:"gte=0"`
	ShippingAddress *AddressRequest   `json:"shipping_address,omitempty"`
	TotalAmount     int64             `json:"total_amount" binding:"required,gt=0"`
	ServiceFee      int64             `json:"service_fee" binding:"gte=0"`
}

// ConfirmQualityRequest is the request body for buyer quality confirmation.
type ConfirmQualityRequest struct {
	Rating int     `json:"rating" binding:"required,min=1,max=5"`
	Notes  *string `json:"notes,omitempty" binding:"omitempty,max=1000"`
}

// OrderResponse is one created order in a payment response.
type OrderResponse struct {
	ID                 string `json:"id"`
	SellerID           string `json:"seller_id"`
	ProductID          string `json:"product_id"`
	ProductTitle       string `json:"product_title"`
	Quantity           int    `json:"quantity"`
	TotalAmount        int64  `json:"total_amount"`
	ServiceFee         int64  `json:"service_fee"`
	ShippingFee        int64  `json:"shipping_fee"`
	ShippingMethod     string `json:"shipping_method"`
	Status             string `json:"status"`
	EscrowState        string `json:"escrow_state"`
	InspectionDeadline string `json:"inspection_deadline"`
}

// WalletPaymentResponse is the response for a synchronous wallet payment.
type WalletPaymentResponse struct {
	Reference  string          `json:"reference"`
	Orders     []OrderResponse `json:"orders"`
	NewBalance int64           `json:"new_balance"`
}

// CardPaymentResponse is the response for a deferred card payment.
type CardPaymentResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// HybridPaymentResponse is the response for a hybrid payment. When the
// wallet covered the full amount, Wallet is set and AuthorizationURL is
// empty.
type HybridPaymentResponse struct {
	Reference        string                 `json:"reference"`
	AuthorizationURL string                 `json:"authorization_url,omitempty"`
	WalletPortion    int64                  `json:"wallet_portion"`
	CardPortion      int64                  `json:"card_portion"`
	Wallet           *WalletPaymentResponse `json:"wallet,omitempty"`
}

// WalletBalanceResponse is the response for a balance query.
type WalletBalanceResponse struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
}
