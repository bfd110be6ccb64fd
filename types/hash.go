package types

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hash is the 2-to-1 (and variable-arity) collision-resistant
// compression function `H: seq<F> -> F` spec §3 requires for every
// Merkle node, account leaf and order leaf. Poseidon is spec §1's
// prescribed construction but is explicitly named an out-of-scope,
// black-box primitive there — this discharges the same contract with
// gnark-crypto's circuit-friendly MiMC hash, the construction the
// retrieval pack's own rollup reference code (trie.go/examples/rollup16)
// builds its account-state Merkle tree with.
//
// Hash is deterministic and pure: it always starts from a fresh MiMC
// state and never retains input beyond the call.
func Hash(inputs ...F) F {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		b := in.Bytes()
		_, _ = h.Write(b[:])
	}
	sum := h.Sum(nil)
	var out F
	out.SetBytes(sum)
	return out
}

// Hash2 is the common two-input case (Merkle internal nodes) spelled
// out separately so call sites at the tree's hot path don't allocate a
// slice per call.
func Hash2(left, right F) F {
	h := mimc.NewMiMC()
	lb := left.Bytes()
	rb := right.Bytes()
	_, _ = h.Write(lb[:])
	_, _ = h.Write(rb[:])
	sum := h.Sum(nil)
	var out F
	out.SetBytes(sum)
	return out
}
