package payments

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SplitResult is the commission split for one charge. Derived, never
// persisted; MerchantAmount + CommissionAmount always equals the input total.
type SplitResult struct {
	MerchantAmount   int64 `json:"merchant_amount"`
	CommissionAmount int64 `json:"commission_amount"`
}

// SplitCalculator computes the platform commission for a charge total.
// Amounts are in minor units (paise).
type SplitCalculator struct {
	rate      decimal.Decimal
	minAmount int64
}

// NewSplitCalculator creates a calculator for the given commission percent
// (e.g. 1.0 for 1%) and minimum chargeable total.
func NewSplitCalculator(commissionPercent float64, minAmount int64) *SplitCalculator {
	return &SplitCalculator{
		rate:      decimal.NewFromFloat(commissionPercent).Div(decimal.NewFromInt(100)),
		minAmount: minAmount,
	}
}

// ComputeSplit splits a total into merchant and commission amounts. The
// merchant amount is always total minus the rounded commission, never
// computed independently, so the two sides sum exactly to the total.
func (c *SplitCalculator) ComputeSplit(total int64) (SplitResult, error) {
	if total < c.minAmount {
		return SplitResult{}, fmt.Errorf("total %d below configured minimum %d", total, c.minAmount)
	}

	commission := decimal.NewFromInt(total).Mul(c.rate).Round(0).IntPart()
	return SplitResult{
		MerchantAmount:   total - commission,
		CommissionAmount: commission,
	}, nil
}
