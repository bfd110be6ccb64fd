package types

import (
	"fmt"
	"math/big"
)

// AmountLen is the default wire width, in bytes, of a packed Amount
// (spec §4.E / §6 `AMOUNT_LEN`). A keeper built with a different
// Config.AmountLen constructs Amounts via NewAmountCodec instead.
const AmountLen = 5

// amountExponentBits mirrors the circuit's float40 layout: 5
// exponent bits, the remainder significand (spec §4.E "significand+exponent").
const amountExponentBits = 5

// AmountCodec binds the significand/exponent bit widths derived from a
// configured AMOUNT_LEN, so from_decimal/to_decimal stay correct for
// any block-size configuration.
type AmountCodec struct {
	lenBytes         int
	exponentBits     uint
	significandBits  uint
	maxExponent      uint64
	maxSignificand   *big.Int
}

// NewAmountCodec builds a codec for a wire width of lenBytes bytes,
// reserving amountExponentBits of it for the exponent as the circuit
// does.
func NewAmountCodec(lenBytes int) *AmountCodec {
	totalBits := uint(lenBytes * 8)
	c := &AmountCodec{
		lenBytes:        lenBytes,
		exponentBits:    amountExponentBits,
		significandBits: totalBits - amountExponentBits,
	}
	c.maxExponent = (uint64(1) << c.exponentBits) - 1
	c.maxSignificand = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), c.significandBits), big.NewInt(1))
	return c
}

// DefaultAmountCodec is the codec for spec §8's worked examples
// (AMOUNT_LEN=5).
var DefaultAmountCodec = NewAmountCodec(AmountLen)

// Amount is the compact {significand, exponent} numeric representation
// of spec §4.E: value = significand * 10^exponent.
type Amount struct {
	Significand *big.Int
	Exponent    uint64
}

// FromDecimal scales d (a decimal string, e.g. "0.012345") by
// 10^precision, strips trailing zeros into the exponent, and fails if
// the result doesn't fit the significand width or isn't an integer.
func (c *AmountCodec) FromDecimal(d string, precision uint) (Amount, error) {
	scaled, err := scaleDecimalToInt(d, precision)
	if err != nil {
		return Amount{}, fmt.Errorf("from_decimal %q at precision %d: %w", d, precision, err)
	}
	return c.fromScaledInt(scaled)
}

// FromDecimalInt is the integer-amount counterpart of FromDecimal: it
// scales d by 10^precision (e.g. from_decimal(1_000_000, 6)).
func (c *AmountCodec) FromDecimalInt(d int64, precision uint) (Amount, error) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	return c.fromScaledInt(new(big.Int).Mul(big.NewInt(d), scale))
}

// FromScaledInt builds an Amount directly from an already-scaled
// integer value (e.g. a balance field element converted via FToBig),
// stripping trailing decimal zeros into the exponent exactly as
// FromDecimal does. Used by the pub-data bit-packer, which only ever
// sees raw scaled values, never decimal strings.
func (c *AmountCodec) FromScaledInt(scaled *big.Int) (Amount, error) {
	return c.fromScaledInt(scaled)
}

func (c *AmountCodec) fromScaledInt(scaled *big.Int) (Amount, error) {
	if scaled.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %s", scaled.String())
	}
	significand := new(big.Int).Set(scaled)
	var exponent uint64
	ten := big.NewInt(10)
	zero := big.NewInt(0)
	mod := new(big.Int)
	quo := new(big.Int)
	for significand.Sign() != 0 {
		quo.QuoRem(significand, ten, mod)
		if mod.Cmp(zero) != 0 {
			break
		}
		significand.Set(quo)
		exponent++
	}
	if exponent > c.maxExponent {
		return Amount{}, fmt.Errorf("exponent %d exceeds max %d", exponent, c.maxExponent)
	}
	if significand.Cmp(c.maxSignificand) > 0 {
		return Amount{}, fmt.Errorf("significand %s overflows %d-bit width", significand.String(), c.significandBits)
	}
	return Amount{Significand: significand, Exponent: exponent}, nil
}

// ToDecimal renders the amount back to a decimal string at the given
// precision, i.e. the inverse scaling FromDecimal applied.
func (a Amount) ToDecimal(precision uint) string {
	scaled := a.toScaledInt()
	return renderScaledDecimal(scaled, precision)
}

func (a Amount) toScaledInt() *big.Int {
	n := new(big.Int).Set(a.Significand)
	p := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.Exponent)), nil)
	return n.Mul(n, p)
}

// ToFr decodes the amount back to the field element of its scaled
// integer value, as the circuit consumes it (spec §4.E `to_fr`).
func (a Amount) ToFr() F {
	return BigToF(a.toScaledInt())
}

// ToEncodedInt returns the big-int the bit-packer embeds directly
// (spec §4.E `to_encoded_int`): significand in the low bits, exponent
// in the high bits.
func (c *AmountCodec) ToEncodedInt(a Amount) *big.Int {
	out := new(big.Int).Set(a.Significand)
	exp := new(big.Int).SetUint64(a.Exponent)
	exp.Lsh(exp, c.significandBits)
	return out.Or(out, exp)
}

// FromEncodedBigint is the inverse of ToEncodedInt, used by the pub-data
// decoder to recover an Amount from its packed bits.
func (c *AmountCodec) FromEncodedBigint(n *big.Int) Amount {
	sigMask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), c.significandBits), big.NewInt(1))
	significand := new(big.Int).And(n, sigMask)
	exponent := new(big.Int).Rsh(n, c.significandBits)
	return Amount{Significand: significand, Exponent: exponent.Uint64()}
}

// EncodeLen returns the bit width of the packed representation.
func (c *AmountCodec) EncodeLen() uint {
	return uint(c.lenBytes) * 8
}

func scaleDecimalToInt(d string, precision uint) (*big.Int, error) {
	neg := false
	s := d
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	for i, r := range s {
		if r == '.' {
			intPart = s[:i]
			fracPart = s[i+1:]
			break
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	if uint(len(fracPart)) > precision {
		return nil, fmt.Errorf("value has more fractional digits than precision %d", precision)
	}
	for uint(len(fracPart)) < precision {
		fracPart += "0"
	}
	digits := intPart + fracPart
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("not a valid decimal number: %q", d)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

func renderScaledDecimal(scaled *big.Int, precision uint) string {
	neg := scaled.Sign() < 0
	abs := new(big.Int).Abs(scaled)
	digits := abs.String()
	for uint(len(digits)) <= precision {
		digits = "0" + digits
	}
	if precision == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	splitAt := uint(len(digits)) - precision
	out := digits[:splitAt] + "." + digits[splitAt:]
	if neg {
		return "-" + out
	}
	return out
}
