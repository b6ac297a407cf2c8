package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPercentageOf(t *testing.T) {
	// 10% of 1000.00 PHP.
	require.EqualValues(t, 10000, PercentageOf(100000, 10))
	// Rounds to the nearest centavo: 15% of 3.33 = 0.4995 -> 0.50.
	require.EqualValues(t, 50, PercentageOf(333, 15))
	require.EqualValues(t, 0, PercentageOf(0, 50))
	require.EqualValues(t, 0, PercentageOf(1000, 0))
}

func TestCapAt(t *testing.T) {
	cap := int64(500)
	require.EqualValues(t, 500, CapAt(900, &cap))
	require.EqualValues(t, 300, CapAt(300, &cap))
	require.EqualValues(t, 900, CapAt(900, nil))
}

func TestSplitProportionalTwoOrders(t *testing.T) {
	// Session total 1500.00 from orders of 1000.00 and 500.00.
	shares, err := SplitProportional(150000, 4500, []int64{100000, 50000})
	require.NoError(t, err)
	require.Len(t, shares, 2)
	require.EqualValues(t, 100000, shares[0].AmountCents)
	require.EqualValues(t, 50000, shares[1].AmountCents)
	require.EqualValues(t, 3000, shares[0].FeeCents)
	require.EqualValues(t, 1500, shares[1].FeeCents)
}

func TestSplitProportionalRoundingResidue(t *testing.T) {
	// 100.00 split three ways rounds to 33.33 each, residue 1 centavo.
	shares, err := SplitProportional(10000, 0, []int64{1, 1, 1})
	require.NoError(t, err)
	var sum int64
	for _, s := range shares {
		sum += s.AmountCents
	}
	require.True(t, WithinTolerance(10000, sum))
}

func TestSplitProportionalRejectsBadWeights(t *testing.T) {
	_, err := SplitProportional(1000, 0, nil)
	require.Error(t, err)
	_, err = SplitProportional(1000, 0, []int64{0, 0})
	require.Error(t, err)
	_, err = SplitProportional(1000, 0, []int64{-5, 10})
	require.Error(t, err)
}
