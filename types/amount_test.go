package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountFromDecimalRoundTrip(t *testing.T) {
	c := DefaultAmountCodec
	cases := []struct {
		decimal   string
		precision uint
	}{
		{"1000000", 6},
		{"0.012345", 6},
		{"0.15", 6},
		{"0", 6},
	}
	for _, tc := range cases {
		a, err := c.FromDecimal(tc.decimal, tc.precision)
		require.NoError(t, err, tc.decimal)
		got := a.ToDecimal(tc.precision)
		want, err := scaleDecimalToInt(tc.decimal, tc.precision)
		require.NoError(t, err)
		gotScaled, err := scaleDecimalToInt(got, tc.precision)
		require.NoError(t, err)
		require.Equal(t, want.String(), gotScaled.String(), "round trip for %s", tc.decimal)
	}
}

func TestAmountEncodeDecodeRoundTrip(t *testing.T) {
	c := DefaultAmountCodec
	a, err := c.FromDecimal("0.012345", 6)
	require.NoError(t, err)

	encoded := c.ToEncodedInt(a)
	decoded := c.FromEncodedBigint(encoded)
	require.Equal(t, a.Significand.String(), decoded.Significand.String())
	require.Equal(t, a.Exponent, decoded.Exponent)
}

func TestAmountSignificandOverflow(t *testing.T) {
	c := NewAmountCodec(5) // 40 bits total, 5 exponent bits -> 35 significand bits
	_, err := c.FromDecimal("34359738369", 0) // 2^35 + 1, not a multiple of 10, doesn't fit
	require.Error(t, err)
}

func TestAmountExponentOverflow(t *testing.T) {
	c := NewAmountCodec(5)
	// a significand of 1 with an exponent beyond the 5-bit budget (>31)
	huge := "1"
	for i := 0; i < 32; i++ {
		huge += "0"
	}
	_, err := c.FromDecimal(huge, 0)
	require.Error(t, err)
}
