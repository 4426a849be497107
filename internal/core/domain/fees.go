package domain

import "fmt"

// ShippingTier determines the service fee rate and the shipping method.
type ShippingTier string

const (
	TierSelfArranged    ShippingTier = "self-arranged"
	TierBasicDelivery   ShippingTier = "basic-delivery"
	TierPremiumDelivery ShippingTier = "premium-delivery"
)

// Valid reports whether the tier is one of the known values.
func (t ShippingTier) Valid() bool {
	switch t {
	case TierSelfArranged, TierBasicDelivery, TierPremiumDelivery:
		return true
	}
	return false
}

// Method maps a tier to the shipping method recorded on orders.
func (t ShippingTier) Method() ShippingMethod {
	if t == TierSelfArranged {
		return ShippingSelfArranged
	}
	return ShippingCarrier
}

// FeePolicy holds the service fee rate per shipping tier, in basis points.
// The rate applies to item value only, never to shipping or insurance.
type FeePolicy struct {
	SelfArrangedBps int64
	BasicBps        int64
	PremiumBps      int64
}

// DefaultFeePolicy returns the standard marketplace rates.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{SelfArrangedBps: 0, BasicBps: 250, PremiumBps: 450}
}

// Bps returns the service fee rate for a tier in basis points.
func (p FeePolicy) Bps(tier ShippingTier) int64 {
	switch tier {
	case TierBasicDelivery:
		return p.BasicBps
	case TierPremiumDelivery:
		return p.PremiumBps
	default:
		return p.SelfArrangedBps
	}
}

// FeeBreakdown is the result of fee computation for a priced cart.
// Invariant: Total == SellerReceives + ServiceFee + ShippingFee + InsuranceFee.
type FeeBreakdown struct {
	BaseAmount     int64 `json:"base_amount"`
	ServiceFee     int64 `json:"service_fee"`
	SellerReceives int64 `json:"seller_receives"`
	ShippingFee    int64 `json:"shipping_fee"`
	InsuranceFee   int64 `json:"insurance_fee"`
	Total          int64 `json:"total"`
}

// ComputeFees derives the fee breakdown for a base amount under a tier.
// Amounts are whole currency units; the service fee rounds half up.
func ComputeFees(policy FeePolicy, baseAmount int64, tier ShippingTier, shippingFee, insuranceFee int64) (FeeBreakdown, error) {
	if baseAmount < 0 || shippingFee < 0 || insuranceFee < 0 {
		return FeeBreakdown{}, fmt.Errorf("fee inputs must be non-negative")
	}
	if !tier.Valid() {
		return FeeBreakdown{}, fmt.Errorf("unknown shipping tier %q", tier)
	}

	serviceFee := roundBps(baseAmount, policy.Bps(tier))

	return FeeBreakdown{
		BaseAmount:     baseAmount,
		ServiceFee:     serviceFee,
		SellerReceives: baseAmount - serviceFee,
		ShippingFee:    shippingFee,
		InsuranceFee:   insuranceFee,
		Total:          baseAmount + shippingFee + insuranceFee,
	}, nil
}

// roundBps computes amount * bps / 10000 with half-up rounding.
func roundBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
