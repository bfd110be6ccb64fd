package types

import (
	"fmt"

	eddsa "github.com/consensys/gnark-crypto/signature/eddsa"
)

// Signature is the verbatim (hash, s, r8x, r8y) tuple spec §3/§4.F
// records for every signed transaction. The state engine never
// verifies it implicitly — it is recorded as payload and only checked
// on request via CheckSig, matching the `ENABLE_SIG_CHECK1` contract
// of spec §4.F.
type Signature struct {
	Hash F
	S    F
	R8x  F
	R8y  F
}

// PublicKey is an account's BabyJubJub public key y-coordinate, the
// `ay` field of spec §3's account state.
type PublicKey = F

// SignatureVerifier is the black-box BabyJubJub EdDSA oracle named by
// spec §1 ("signing key utilities ... a black-box sign/verify oracle").
// Only this contract is specified; eddsaVerifier below is the one
// concrete implementation the state engine ships (state's
// WitnessGenerator.CheckSig calls through it), built on gnark-crypto's generic EdDSA
// implementation over the twisted-Edwards curve defined atop the BN254
// scalar field (BabyJubJub).
type SignatureVerifier interface {
	Verify(ay PublicKey, msgHash F, sig Signature) (bool, error)
}

// eddsaVerifier is the default SignatureVerifier, grounded on
// gnark-crypto's signature/eddsa package (the same generic
// Signer/PublicKey interface gnark circuits consume off-circuit).
type eddsaVerifier struct{}

// DefaultSignatureVerifier is the production CheckSig oracle.
var DefaultSignatureVerifier SignatureVerifier = eddsaVerifier{}

// Verify reconstructs a compressed EdDSA public key and signature from
// their field-element components and checks the signature against the
// pre-hashed message. Any malformed component is a category-4
// (signature) failure: it returns (false, err) rather than panicking.
// state's WitnessGenerator.CheckSig passes the result on, and
// adapter.Adapter.ApplyTrade turns a failed check into a panic.
func (eddsaVerifier) Verify(ay PublicKey, msgHash F, sig Signature) (bool, error) {
	var pk eddsa.PublicKey
	ayBytes := ay.Bytes()
	if _, err := pk.SetBytes(ayBytes[:]); err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}

	sigBytes := encodeSignature(sig)

	msgBytes := msgHash.Bytes()
	ok, err := pk.Verify(sigBytes, msgBytes[:], nil)
	if err != nil {
		return false, fmt.Errorf("verify signature: %w", err)
	}
	return ok, nil
}

// encodeSignature packs (r8x, r8y, s) into the compressed wire format
// gnark-crypto's eddsa.PublicKey.Verify expects (point-compressed R,
// little-endian S).
func encodeSignature(sig Signature) []byte {
	r8xBytes := sig.R8x.Bytes()
	r8yBytes := sig.R8y.Bytes()
	sBytes := sig.S.Bytes()

	out := make([]byte, 0, len(r8xBytes)+len(r8yBytes)+len(sBytes))
	out = append(out, r8yBytes[:]...)
	out = append(out, r8xBytes[:]...)
	out = append(out, sBytes[:]...)
	return out
}
