package elgamal

import (
	"errors"
	"fmt"

	big "github.com/ncw/gmp"
)

var (
	// ErrChallengeMismatch means the recomputed Fiat-Shamir challenge differs
	// from the one carried by the proof.
	ErrChallengeMismatch = errors.New("challenge mismatch")
	// ErrEquation means one of the verification identities does not hold.
	ErrEquation = errors.New("verification equation failed")
	// ErrNotResidue means a group element is outside [1, p-1].
	ErrNotResidue = errors.New("value is not a residue mod p")
	// ErrOutOfRange means a challenge or response is outside [0, q).
	ErrOutOfRange = errors.New("value is not in Z_q")
	// ErrMissing means a proof or one of its fields is absent.
	ErrMissing = errors.New("proof data missing")
)

// SchnorrProof is a proof of knowledge of the secret s behind h = g^s,
// based on https://tools.ietf.org/html/rfc8235
//
//	K = g^r   the commitment
//	C = H(h, K) mod q
//	U = r + C*s mod q
type SchnorrProof struct {
	K, C, U *big.Int
}

// VerifyProof checks a proof of knowledge of the secret key associated
// with this public key. The challenge is always recomputed.
func (pk *PublicKey) VerifyProof(pok *SchnorrProof) error {
	if pok == nil || pok.K == nil || pok.C == nil || pok.U == nil {
		return fmt.Errorf("Schnorr proof invalid: %w", ErrMissing)
	}
	if err := pk.Validate(); err != nil {
		return fmt.Errorf("Schnorr proof invalid: %v: %w", err, ErrNotResidue)
	}
	if !pk.IsValidResidue(pok.K) {
		return fmt.Errorf("Schnorr proof invalid: commitment: %w", ErrNotResidue)
	}
	if !pk.inExponentRange(pok.C) || !pk.inExponentRange(pok.U) {
		return fmt.Errorf("Schnorr proof invalid: challenge/response: %w", ErrOutOfRange)
	}
	expected, err := pk.Challenge(pk.Y, pok.K)
	if err != nil {
		return fmt.Errorf("Schnorr proof invalid: %w", err)
	}
	if expected.Cmp(pok.C) != 0 {
		return fmt.Errorf("Schnorr proof invalid: %w", ErrChallengeMismatch)
	}
	return pk.verifySchnorrEquation(pok)
}

// verifySchnorrEquation checks g^U == K * h^C mod p, without touching the challenge
func (pk *PublicKey) verifySchnorrEquation(pok *SchnorrProof) error {
	lhs := new(big.Int).Exp(pk.G, pok.U, pk.P)
	rhs := new(big.Int).Exp(pk.Y, pok.C, pk.P)
	mulMod(rhs, rhs, pok.K, pk.P)
	if lhs.Cmp(rhs) != 0 {
		return fmt.Errorf("Schnorr proof invalid: g^U != K * h^C: %w", ErrEquation)
	}
	return nil
}
