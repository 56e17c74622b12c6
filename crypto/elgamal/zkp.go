package elgamal

import (
	"fmt"

	big "github.com/ncw/gmp"
)

// ChaumPedersenProof in general form.
// This struct doesn't contain enough information to validate the proof,
// that can only be done in context: which bases, which public values and
// what goes into the challenge depend on what is being proved.
//
// The general form is:
//
//	Prove(g, h, x, challengeFn)
//	  w = random()
//	  A = g^w % p
//	  B = h^w % p
//	  C = challengeFn(A, B) % q
//	  U = (w + x*C) % q
//	  return { A, B, C, U }
//
//	Verify(A, B, C, U, g, h, G, H)
//	  check g^U % p === (A * G^C) % p
//	  check h^U % p === (B * H^C) % p
//
// We prove we know x such that G = g^x and H = h^x, and g is always the
// system generator.
//
// We verify four forms of this proof:
//   - an ElGamal message (a, b) encrypts zero: h = public key, G = a, H = b
//   - the disjunctive (zero OR one) selection proof, two of the above
//   - the selection limit proof over the product of a contest's selections
//   - correct partial decryption: h = a, G = share public key, H = share
type ChaumPedersenProof struct {
	A, B, C, U *big.Int
}

func (s *System) checkZKPRanges(zkp *ChaumPedersenProof) error {
	if zkp == nil || zkp.A == nil || zkp.B == nil || zkp.C == nil || zkp.U == nil {
		return ErrMissing
	}
	if !s.IsValidResidue(zkp.A) || !s.IsValidResidue(zkp.B) {
		return fmt.Errorf("commitment: %w", ErrNotResidue)
	}
	if !s.inExponentRange(zkp.C) || !s.inExponentRange(zkp.U) {
		return fmt.Errorf("challenge/response: %w", ErrOutOfRange)
	}
	return nil
}

func verifyZKP(zkp *ChaumPedersenProof, s *System, h, G, H *big.Int) error {
	lhs, rhs := new(big.Int), new(big.Int)

	// check g^U % p === (A * G^C) % p
	lhs.Exp(s.G, zkp.U, s.P)
	rhs.Exp(G, zkp.C, s.P)
	mulMod(rhs, rhs, zkp.A, s.P)
	if lhs.Cmp(rhs) != 0 {
		return fmt.Errorf("g^U != A * G^C: %w", ErrEquation)
	}
	// check h^U % p === (B * H^C) % p
	lhs.Exp(h, zkp.U, s.P)
	rhs.Exp(H, zkp.C, s.P)
	mulMod(rhs, rhs, zkp.B, s.P)
	if lhs.Cmp(rhs) != 0 {
		return fmt.Errorf("h^U != B * H^C: %w", ErrEquation)
	}
	return nil
}

// VerifyZeroProof checks that (a, b) encrypts zero under pk. The challenge
// carried by the proof is taken as already bound by the caller.
func VerifyZeroProof(zkp *ChaumPedersenProof, pk *PublicKey, ct *CipherText) error {
	if !ct.Valid(pk.System) {
		return fmt.Errorf("ChaumPedersen proof invalid: message: %w", ErrNotResidue)
	}
	if err := pk.checkZKPRanges(zkp); err != nil {
		return fmt.Errorf("ChaumPedersen proof invalid: %w", err)
	}
	if err := verifyZKP(zkp, pk.System, pk.Y, ct.A, ct.B); err != nil {
		return fmt.Errorf("ChaumPedersen proof invalid: %w", err)
	}
	return nil
}

// DisjunctiveProof shows a ciphertext encrypts zero or one without
// revealing which. One branch is genuine and the other simulated; nothing
// here can tell them apart, the sum of the challenges is what forces one
// of them to be real.
type DisjunctiveProof struct {
	Zero, One *ChaumPedersenProof
}

// VerifyEncryptionProof checks the disjunctive proof for a selection:
//
//   - the zero branch against (a, b)
//   - the one branch against (a, b/g)
//   - H(Q̄, a, b, A_zero, B_zero, A_one, B_one) == C_zero + C_one mod q
func VerifyEncryptionProof(zkp *DisjunctiveProof, pk *PublicKey, ct *CipherText, qbar *big.Int) error {
	if zkp == nil {
		return fmt.Errorf("Disjunctive proof invalid: %w", ErrMissing)
	}
	if !ct.Valid(pk.System) {
		return fmt.Errorf("Disjunctive proof invalid: message: %w", ErrNotResidue)
	}
	if err := pk.checkZKPRanges(zkp.Zero); err != nil {
		return fmt.Errorf("Disjunctive proof invalid: zero branch: %w", err)
	}
	if err := pk.checkZKPRanges(zkp.One); err != nil {
		return fmt.Errorf("Disjunctive proof invalid: one branch: %w", err)
	}

	if err := verifyZKP(zkp.Zero, pk.System, pk.Y, ct.A, ct.B); err != nil {
		return fmt.Errorf("Disjunctive proof invalid: zero branch: %w", err)
	}
	minusOne, err := ct.Shift(pk.System, pk.G)
	if err != nil {
		return err
	}
	if err := verifyZKP(zkp.One, pk.System, pk.Y, minusOne.A, minusOne.B); err != nil {
		return fmt.Errorf("Disjunctive proof invalid: one branch: %w", err)
	}

	calc, err := pk.Challenge(qbar, ct.A, ct.B, zkp.Zero.A, zkp.Zero.B, zkp.One.A, zkp.One.B)
	if err != nil {
		return fmt.Errorf("Disjunctive proof invalid: %w", err)
	}
	csum := new(big.Int).Add(zkp.Zero.C, zkp.One.C)
	csum.Mod(csum, pk.Q)
	if calc.Cmp(csum) != 0 {
		return fmt.Errorf("Disjunctive proof invalid: branch challenges do not sum to the computed challenge: %w", ErrChallengeMismatch)
	}
	return nil
}

// AggregateSelections homomorphically combines a contest's selections and
// removes limit from the plaintext, giving (∏a, ∏b / g^limit).
func AggregateSelections(sys *System, cts []*CipherText, limit int) (*CipherText, error) {
	if len(cts) == 0 {
		return nil, fmt.Errorf("no selections to aggregate")
	}
	if limit < 0 {
		return nil, fmt.Errorf("negative selection limit %d", limit)
	}
	var agg *CipherText
	for i, ct := range cts {
		if !ct.Valid(sys) {
			return nil, fmt.Errorf("selection %d: %w", i, ErrNotResidue)
		}
		agg = agg.Mul(sys, ct)
	}
	gL, err := ModPow(sys.G, big.NewInt(int64(limit)), sys.P)
	if err != nil {
		return nil, err
	}
	return agg.Shift(sys, gL)
}

// VerifySelectionLimit checks that the selections of a contest add up to
// exactly limit: (∏a, ∏b / g^limit) must encrypt zero, with challenge
// H(Q̄, A, B, α, β).
func VerifySelectionLimit(zkp *ChaumPedersenProof, pk *PublicKey, cts []*CipherText, limit int, qbar *big.Int) error {
	agg, err := AggregateSelections(pk.System, cts, limit)
	if err != nil {
		return fmt.Errorf("SelectionLimit proof invalid: %w", err)
	}
	if err := pk.checkZKPRanges(zkp); err != nil {
		return fmt.Errorf("SelectionLimit proof invalid: %w", err)
	}
	calc, err := pk.Challenge(qbar, agg.A, agg.B, zkp.A, zkp.B)
	if err != nil {
		return fmt.Errorf("SelectionLimit proof invalid: %w", err)
	}
	if calc.Cmp(zkp.C) != 0 {
		return fmt.Errorf("SelectionLimit proof invalid: %w", ErrChallengeMismatch)
	}
	if err := verifyZKP(zkp, pk.System, pk.Y, agg.A, agg.B); err != nil {
		return fmt.Errorf("SelectionLimit proof invalid: %w", err)
	}
	return nil
}

// VerifyPartialDecryptionProof validates the proof that partial = a^s
// where pk = g^s. This is used both for a trustee's own share (pk is its
// principal key) and for a fragment of a missing trustee's share (pk is
// the key from ShareVerificationKey).
//
// The challenge is H(Q̄, a, b, A, B, partial).
func VerifyPartialDecryptionProof(zkp *ChaumPedersenProof, pk *PublicKey, ct *CipherText, partial, qbar *big.Int) error {
	if !ct.Valid(pk.System) {
		return fmt.Errorf("Decryption proof invalid: message: %w", ErrNotResidue)
	}
	if !pk.IsValidResidue(partial) {
		return fmt.Errorf("Decryption proof invalid: share: %w", ErrNotResidue)
	}
	if err := pk.Validate(); err != nil {
		return fmt.Errorf("Decryption proof invalid: %v: %w", err, ErrNotResidue)
	}
	if err := pk.checkZKPRanges(zkp); err != nil {
		return fmt.Errorf("Decryption proof invalid: %w", err)
	}
	calc, err := pk.Challenge(qbar, ct.A, ct.B, zkp.A, zkp.B, partial)
	if err != nil {
		return fmt.Errorf("Decryption proof invalid: %w", err)
	}
	if calc.Cmp(zkp.C) != 0 {
		return fmt.Errorf("Decryption proof invalid: %w", ErrChallengeMismatch)
	}
	if err := verifyZKP(zkp, pk.System, ct.A, pk.Y, partial); err != nil {
		return fmt.Errorf("Decryption proof invalid: %w", err)
	}
	return nil
}
