// Package money implements centavo-denominated arithmetic for pricing and
// payment splitting. Amounts are int64 minor units everywhere; decimal math
// is confined to this package.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ResidueTolerance is the largest aggregate rounding drift, in centavos,
// accepted when cross-checking a proportional split against its source total.
const ResidueTolerance = 2

// PercentageOf returns percent% of amountCents rounded to the nearest centavo.
func PercentageOf(amountCents int64, percent int64) int64 {
	if amountCents <= 0 || percent <= 0 {
		return 0
	}
	result := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return result.IntPart()
}

// CapAt clamps amount to the optional maximum. A nil cap means uncapped.
func CapAt(amountCents int64, capCents *int64) int64 {
	if capCents == nil {
		return amountCents
	}
	if amountCents > *capCents {
		return *capCents
	}
	return amountCents
}

// Min returns the smaller of two centavo amounts.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// ClampNonNegative floors an amount at zero.
func ClampNonNegative(amountCents int64) int64 {
	if amountCents < 0 {
		return 0
	}
	return amountCents
}

// Share is one order's portion of a proportionally split payment.
type Share struct {
	AmountCents int64
	FeeCents    int64
}

// SplitProportional distributes totalCents and feeCents across weights in
// proportion to each weight's share of the weight sum, rounding per share.
// The aggregate may drift from the source totals by at most ResidueTolerance
// centavos per figure; larger drift is rejected.
func SplitProportional(totalCents, feeCents int64, weights []int64) ([]Share, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("split requires at least one weight")
	}

	var sum int64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %d", w)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("weight sum must be positive")
	}

	total := decimal.NewFromInt(totalCents)
	fee := decimal.NewFromInt(feeCents)
	denominator := decimal.NewFromInt(sum)

	shares := make([]Share, len(weights))
	var allocated, allocatedFee int64
	for i, w := range weights {
		ratio := decimal.NewFromInt(w).Div(denominator)
		amount := total.Mul(ratio).Round(0).IntPart()
		feePart := fee.Mul(ratio).Round(0).IntPart()
		shares[i] = Share{AmountCents: amount, FeeCents: feePart}
		allocated += amount
		allocatedFee += feePart
	}

	if residue := abs(totalCents - allocated); residue > ResidueTolerance {
		return nil, fmt.Errorf("split residue %d centavos exceeds tolerance", residue)
	}
	if residue := abs(feeCents - allocatedFee); residue > ResidueTolerance {
		return nil, fmt.Errorf("fee split residue %d centavos exceeds tolerance", residue)
	}

	return shares, nil
}

// WithinTolerance reports whether two centavo amounts differ by at most
// ResidueTolerance.
func WithinTolerance(a, b int64) bool {
	return abs(a-b) <= ResidueTolerance
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
