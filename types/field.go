// Package types holds the wire-level data model shared by the state
// engine and the witness generator: the field element, the hash
// primitive, the float-amount codec and the fixed transaction payload
// layout.
package types

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// F is a single element of the BN254 scalar field — the native type
// for every Merkle hash, account field and transaction payload slot.
type F = fr.Element

// ZeroF and OneF are the additive and multiplicative identities.
func ZeroF() F {
	var f F
	return f.SetZero()
}

func OneF() F {
	var f F
	return f.SetOne()
}

// U32ToF widens a u32 into the field.
func U32ToF(v uint32) F {
	var f F
	f.SetUint64(uint64(v))
	return f
}

// U64ToF widens a u64 into the field.
func U64ToF(v uint64) F {
	var f F
	f.SetUint64(v)
	return f
}

// BoolToF maps false/true to 0/1.
func BoolToF(b bool) F {
	if b {
		return OneF()
	}
	return ZeroF()
}

// BigToF reduces an arbitrary big.Int modulo the field prime.
func BigToF(n *big.Int) F {
	var f F
	f.SetBigInt(n)
	return f
}

// FToBig returns the canonical (non-Montgomery) big.Int representation.
func FToBig(f F) *big.Int {
	var n big.Int
	f.BigInt(&n)
	return &n
}

// FFromDecimal parses a base-10 string into a field element. Returns an
// error on malformed input — this is a category-1 (parse) failure, not
// a fatal one.
func FFromDecimal(s string) (F, error) {
	var f F
	_, err := f.SetString(s)
	if err != nil {
		return F{}, fmt.Errorf("parse decimal field element %q: %w", s, err)
	}
	return f, nil
}

// FFromHex parses a canonical big-endian hex string (with or without a
// 0x prefix) into a field element.
func FFromHex(s string) (F, error) {
	n, ok := new(big.Int).SetString(trimHexPrefix(s), 16)
	if !ok {
		return F{}, fmt.Errorf("parse hex field element %q", s)
	}
	return BigToF(n), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// FToDecimalString renders the canonical decimal-string encoding used by
// the outbound block record (spec §6).
func FToDecimalString(f F) string {
	return f.String()
}

// FToHex renders the canonical big-endian hex encoding of f.
func FToHex(f F) string {
	n := FToBig(f)
	return fmt.Sprintf("%x", n)
}

// powersOfTwo caches 2^k mod p for the shift widths actually used by the
// account/order hash packing (spec §3: nonce|sign<<40, tokenbuy<<32,
// tokensell<<64).
var powersOfTwo = map[uint]F{}

func powerOfTwo(k uint) F {
	if v, ok := powersOfTwo[k]; ok {
		return v
	}
	n := new(big.Int).Lsh(big.NewInt(1), k)
	v := BigToF(n)
	powersOfTwo[k] = v
	return v
}

// Shl multiplies f by 2^k modulo the field prime — the "bit-shift by a
// constant" primitive spec §3 requires for packing sub-field values
// into a single hash input (e.g. sign<<40).
func Shl(f F, k uint) F {
	var out F
	p := powerOfTwo(k)
	out.Mul(&f, &p)
	return out
}

// Add, Sub and Eq are thin, explicitly-named wrappers kept around the
// in-place gnark-crypto API so call sites read as value semantics.
func Add(a, b F) F {
	var out F
	out.Add(&a, &b)
	return out
}

func Sub(a, b F) F {
	var out F
	out.Sub(&a, &b)
	return out
}

func Eq(a, b F) bool {
	return a.Equal(&b)
}

func IsZero(f F) bool {
	return f.IsZero()
}
