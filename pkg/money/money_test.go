package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float64
		want string
	}{
		{name: "half rounds up", in: 12.345, want: "12.35"},
		{name: "already settled", in: 100, want: "100"},
		{name: "below half", in: 0.004, want: "0"},
		{name: "long tail", in: 7.1249999, want: "7.12"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Round(FromFloat(tc.in)).String())
		})
	}
}

func TestSum_RoundsOnce(t *testing.T) {
	t.Parallel()

	// 0.005 rounded per item would credit 0.03; summed first it is 0.02.
	got := Sum(0.005, 0.005, 0.005, 0.005)
	assert.Equal(t, "0.02", got.String())
}

func TestSum_SkipsInvalid(t *testing.T) {
	t.Parallel()

	got := Sum(1.10, math.NaN(), -4, math.Inf(1), 2.20)
	assert.True(t, got.Equal(decimal.RequireFromString("3.30")))
}

func TestCents(t *testing.T) {
	t.Parallel()

	cents, err := ToCents(FromFloat(12.345))
	require.NoError(t, err)
	assert.Equal(t, int64(1235), cents)
	assert.Equal(t, "112.35", FromCents(11235).StringFixed(2))
	assert.Equal(t, 112.35, CentsFloat(11235))
}

func TestIsValidAmount(t *testing.T) {
	t.Parallel()

	assert.True(t, IsValidAmount(0))
	assert.True(t, IsValidAmount(3.5))
	assert.False(t, IsValidAmount(-0.01))
	assert.False(t, IsValidAmount(math.NaN()))
	assert.False(t, IsValidAmount(math.Inf(-1)))
	assert.True(t, IsValidAmount(MaxAmount))
	assert.False(t, IsValidAmount(1.9e17))
}

func TestToCents_Overflow(t *testing.T) {
	t.Parallel()

	_, err := ToCents(decimal.NewFromFloat(1.9e17))
	assert.ErrorIs(t, err, ErrOverflow)

	// 92233720368547758.07 is exactly math.MaxInt64 cents.
	cents, err := ToCents(decimal.RequireFromString("92233720368547758.07"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), cents)

	_, err = ToCents(decimal.RequireFromString("92233720368547758.08"))
	assert.ErrorIs(t, err, ErrOverflow)
}
