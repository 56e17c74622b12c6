// Package egtest is an honest prover for tests: it generates trustee keys,
// encrypts selections and produces every proof the verifier checks.
// Nothing outside tests should import it.
package egtest

import (
	"bytes"
	"fmt"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/crypto/random"
)

// KeyPair holds a secret exponent and its public key
type KeyPair struct {
	X  *big.Int
	PK *elgamal.PublicKey
}

// GenerateKeyPair creates a new random key pair
func GenerateKeyPair(sys *elgamal.System) *KeyPair {
	return KeypairForSecret(sys, random.Int(sys.Q))
}

// KeypairForSecret derives the public half of x
func KeypairForSecret(sys *elgamal.System, x *big.Int) *KeyPair {
	y := new(big.Int).Exp(sys.G, x, sys.P)
	return &KeyPair{X: new(big.Int).Set(x), PK: &elgamal.PublicKey{System: sys, Y: y}}
}

// GPow is g^m mod p
func GPow(sys *elgamal.System, m int64) *big.Int {
	return new(big.Int).Exp(sys.G, big.NewInt(m), sys.P)
}

// Encrypt encrypts g^m under pk with nonce r (random if nil), returning
// the nonce used.
func Encrypt(pk *elgamal.PublicKey, m int64, r *big.Int) (*elgamal.CipherText, *big.Int) {
	if r == nil {
		r = random.Int(pk.Q)
	}
	a := new(big.Int).Exp(pk.G, r, pk.P)
	b := new(big.Int).Exp(pk.Y, r, pk.P)
	b.Mul(b, GPow(pk.System, m))
	b.Mod(b, pk.P)
	return &elgamal.CipherText{A: a, B: b}, r
}

// ProveKnowledge produces a Schnorr proof of knowledge of kp.X
func ProveKnowledge(kp *KeyPair) *elgamal.SchnorrProof {
	sys := kp.PK.System
	r := random.Int(sys.Q)
	k := new(big.Int).Exp(sys.G, r, sys.P)
	c, err := sys.Challenge(kp.PK.Y, k)
	if err != nil {
		panic(err)
	}
	u := new(big.Int).Mul(c, kp.X)
	u.Add(u, r)
	u.Mod(u, sys.Q)
	return &elgamal.SchnorrProof{K: k, C: c, U: u}
}

type cFn = func(A, B *big.Int) *big.Int

// createZKP proves knowledge of x with G = g^x and H = h^x
func createZKP(s *elgamal.System, h, x *big.Int, fn cFn) *elgamal.ChaumPedersenProof {
	w := random.Int(s.Q)
	A := new(big.Int).Exp(s.G, w, s.P)
	B := new(big.Int).Exp(h, w, s.P)
	C := fn(A, B)
	U := new(big.Int).Mul(x, C)
	U.Add(U, w)
	U.Mod(U, s.Q)
	return &elgamal.ChaumPedersenProof{A: A, B: B, C: C, U: U}
}

func mustChallenge(s *elgamal.System, values ...*big.Int) *big.Int {
	c, err := s.Challenge(values...)
	if err != nil {
		panic(err)
	}
	return c
}

// ProveZero proves ct = (g^r, h^r) encrypts zero, with a caller chosen
// challenge function over the commitments.
func ProveZero(pk *elgamal.PublicKey, r *big.Int, fn func(A, B *big.Int) *big.Int) *elgamal.ChaumPedersenProof {
	return createZKP(pk.System, pk.Y, r, fn)
}

// To fake a proof we work backwards: pick the challenge and response and
// solve for the commitments against the message (a, b / g^m).
func fakeEncZKP(pk *elgamal.PublicKey, ct *elgamal.CipherText, m int64) *elgamal.ChaumPedersenProof {
	shifted, err := ct.Shift(pk.System, GPow(pk.System, m))
	if err != nil {
		panic(err)
	}
	C, U := random.Int(pk.Q), random.Int(pk.Q)
	A, B, tmp := new(big.Int), new(big.Int), new(big.Int)

	// A = g^U / a^C
	A.Exp(shifted.A, C, pk.P)
	A.ModInverse(A, pk.P)
	A.Mul(A, tmp.Exp(pk.G, U, pk.P))
	A.Mod(A, pk.P)

	// B = y^U / (b/g^m)^C
	B.Exp(shifted.B, C, pk.P)
	B.ModInverse(B, pk.P)
	B.Mul(B, tmp.Exp(pk.Y, U, pk.P))
	B.Mod(B, pk.P)
	return &elgamal.ChaumPedersenProof{A: A, B: B, C: C, U: U}
}

// ProveEncryption produces the zero-or-one proof for ct which encrypts
// value (0 or 1) with nonce r. The real branch is created last so its
// challenge can absorb the simulated one.
func ProveEncryption(pk *elgamal.PublicKey, ct *elgamal.CipherText, value int64, r, qbar *big.Int) *elgamal.DisjunctiveProof {
	sys := pk.System
	other := 1 - value
	fake := fakeEncZKP(pk, ct, other)
	genuine := createZKP(sys, pk.Y, r, func(A, B *big.Int) *big.Int {
		var c *big.Int
		if value == 0 {
			c = mustChallenge(sys, qbar, ct.A, ct.B, A, B, fake.A, fake.B)
		} else {
			c = mustChallenge(sys, qbar, ct.A, ct.B, fake.A, fake.B, A, B)
		}
		c.Sub(c, fake.C)
		return c.Mod(c, sys.Q)
	})
	if value == 0 {
		return &elgamal.DisjunctiveProof{Zero: genuine, One: fake}
	}
	return &elgamal.DisjunctiveProof{Zero: fake, One: genuine}
}

// ProveSelectionLimit proves the selections sum to limit. rs are the
// nonces of cts, in order.
func ProveSelectionLimit(pk *elgamal.PublicKey, cts []*elgamal.CipherText, rs []*big.Int, limit int, qbar *big.Int) *elgamal.ChaumPedersenProof {
	sys := pk.System
	agg, err := elgamal.AggregateSelections(sys, cts, limit)
	if err != nil {
		panic(err)
	}
	R := big.NewInt(0)
	for _, r := range rs {
		R.Add(R, r)
	}
	R.Mod(R, sys.Q)
	return createZKP(sys, pk.Y, R, func(A, B *big.Int) *big.Int {
		return mustChallenge(sys, qbar, agg.A, agg.B, A, B)
	})
}

// ProveDecryption returns the partial decryption a^x and its proof
func ProveDecryption(sys *elgamal.System, x *big.Int, ct *elgamal.CipherText, qbar *big.Int) (*big.Int, *elgamal.ChaumPedersenProof) {
	partial := new(big.Int).Exp(ct.A, x, sys.P)
	zkp := createZKP(sys, ct.A, x, func(A, B *big.Int) *big.Int {
		return mustChallenge(sys, qbar, ct.A, ct.B, A, B, partial)
	})
	return partial, zkp
}

// Trustee is a trustee's full private state: polynomial coefficients,
// their commitments and proofs of knowledge.
type Trustee struct {
	Index       int // 1-based
	Coeffs      []*big.Int
	Commitments []*big.Int
	Proofs      []*elgamal.SchnorrProof
}

// NewTrustee creates trustee index with threshold coefficients derived
// deterministically from seed.
func NewTrustee(sys *elgamal.System, index, threshold int, seed *big.Int) *Trustee {
	t := &Trustee{Index: index}
	t.Coeffs = DeriveCoefficients(sys, seed, threshold)
	for _, c := range t.Coeffs {
		kp := KeypairForSecret(sys, c)
		t.Commitments = append(t.Commitments, kp.PK.Y)
		t.Proofs = append(t.Proofs, ProveKnowledge(kp))
	}
	return t
}

// DeriveCoefficients creates the k polynomial coefficients from a secret
func DeriveCoefficients(params *elgamal.System, secret *big.Int, k int) []*big.Int {
	coefficients := make([]*big.Int, k)
	buf := &bytes.Buffer{}
	for i := range coefficients {
		buf.Reset()
		fmt.Fprintf(buf, "coef|%x|%d|%x|%d", params.P.Bytes(), k, secret.Bytes(), i)
		coefficients[i] = random.Oracle(buf.Bytes(), params.Q)
	}
	return coefficients
}

// SecretShare evaluates this trustee's polynomial at j
func (t *Trustee) SecretShare(sys *elgamal.System, j int) *big.Int {
	bigJ := big.NewInt(int64(j))
	// we can recreate the polynomial by working backwards from k-1 to 0
	Sij := big.NewInt(0)
	for n := len(t.Coeffs) - 1; n >= 0; n-- {
		Sij.Mul(Sij, bigJ)
		Sij.Add(Sij, t.Coeffs[n])
		Sij.Mod(Sij, sys.Q)
	}
	return Sij
}

// Secret is P(0)
func (t *Trustee) Secret() *big.Int {
	return t.Coeffs[0]
}

// Fragment is trustee j's piece of missing trustee t's share
type Fragment struct {
	Value       *big.Int
	Coefficient *big.Int
	Proof       *elgamal.ChaumPedersenProof
	Trustee     int
}

// Fragments produces the fragments that the present trustees publish
// to stand in for t.
func (t *Trustee) Fragments(sys *elgamal.System, ct *elgamal.CipherText, present []int, qbar *big.Int) []*Fragment {
	out := make([]*Fragment, 0, len(present))
	for _, j := range present {
		w, err := elgamal.Lagrange(present, j, sys.Q)
		if err != nil {
			panic(err)
		}
		value, proof := ProveDecryption(sys, t.SecretShare(sys, j), ct, qbar)
		out = append(out, &Fragment{Value: value, Coefficient: w, Proof: proof, Trustee: j})
	}
	return out
}

// JointKey is the product of the trustees' principal commitments
func JointKey(sys *elgamal.System, trustees []*Trustee) *elgamal.PublicKey {
	principals := make([]*big.Int, len(trustees))
	for i, t := range trustees {
		principals[i] = t.Commitments[0]
	}
	return elgamal.JointPublicKey(sys, principals)
}
