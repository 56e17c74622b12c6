package elgamal

import (
	"crypto/sha256"
	"fmt"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto"
	"github.com/thechriswalker/egverify/crypto/hashchain"
	"github.com/thechriswalker/egverify/crypto/random"
)

// System represents the parameters for an ElGamal Cryptosystem.
// It is passed explicitly to every verification so tests can run
// against tiny groups instead of the production prime.
type System struct {
	P, Q, G *big.Int
	// Order is the byte order used when integers are hashed.
	Order crypto.ByteOrder
}

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
	bigTwo  = big.NewInt(2)
)

// NewSystem builds the system for the safe prime p = 2q + 1 and generator g.
// It does not check primality, use Validate for that.
func NewSystem(p, g *big.Int, order crypto.ByteOrder) (*System, error) {
	if p == nil || g == nil {
		return nil, &ArithmeticError{Op: "NewSystem", Reason: "missing prime or generator"}
	}
	if p.Cmp(bigTwo) <= 0 {
		return nil, &ArithmeticError{Op: "NewSystem", Reason: "modulus must be > 2"}
	}
	q := new(big.Int).Sub(p, bigOne)
	q.Div(q, bigTwo)
	return &System{
		P:     new(big.Int).Set(p),
		Q:     q,
		G:     new(big.Int).Set(g),
		Order: order,
	}, nil
}

// New creates a new ElGamal system with a safe prime of n-bits.
// This is very slow for large primes (>1024bits), tests use it with
// small sizes to get fresh synthetic groups.
func New(bits int) (sys *System) {
	sys = &System{}
	sys.P, sys.Q = random.SafePrimes(bits)
	// find g, any square other than 1 generates the order q subgroup
	var test big.Int
	for {
		h := random.Int(sys.P)
		sys.G = new(big.Int).Exp(h, bigTwo, sys.P)
		if sys.G.Cmp(bigOne) == 0 || sys.G.Sign() == 0 {
			continue
		}
		if test.Exp(sys.G, sys.Q, sys.P).Cmp(bigOne) == 0 {
			break
		}
	}
	return
}

// Validate checks the system params are OK. That is that
// P = Q * 2 +1 and that P and Q are (probably) prime
// and that G satisfies the exponentation test
func (s *System) Validate() error {
	if s.P == nil || s.Q == nil || s.G == nil {
		return fmt.Errorf("ElGamal System Invalid: missing parameters")
	}
	if !s.P.ProbablyPrime(20) {
		return fmt.Errorf("ElGamal System Invalid: p is not prime")
	}
	if !s.Q.ProbablyPrime(20) {
		return fmt.Errorf("ElGamal System Invalid: q is not prime")
	}
	// p = 2q + 1 exactly, we rely on it for the subgroup checks
	expect := new(big.Int).Mul(s.Q, bigTwo)
	expect.Add(expect, bigOne)
	if expect.Cmp(s.P) != 0 {
		return fmt.Errorf("ElGamal System Invalid: p != 2q + 1")
	}
	if s.G.Cmp(bigOne) <= 0 || s.G.Cmp(s.P) >= 0 {
		return fmt.Errorf("ElGamal System Invalid: g not in (1, p)")
	}
	// now check g^q = 1 mod p
	if new(big.Int).Exp(s.G, s.Q, s.P).Cmp(bigOne) != 0 {
		return fmt.Errorf("ElGamal System invalid: g^q != 1 mod p")
	}
	return nil
}

// HashWidth is the fixed width every integer is encoded at before hashing.
// It is the byte length of p, but never less than a digest so that hash
// values (base hash, extended base hash) always fit.
func (s *System) HashWidth() int {
	w := crypto.ByteWidth(s.P)
	if w < sha256.Size {
		return sha256.Size
	}
	return w
}

// Hasher returns a fresh fixed-width hasher for this system.
func (s *System) Hasher() *hashchain.Hasher {
	return hashchain.New(s.HashWidth(), s.Order)
}

// Challenge hashes the values in order and reduces into Z_q
func (s *System) Challenge(values ...*big.Int) (*big.Int, error) {
	return s.Hasher().Int(values...).SumMod(s.Q)
}

// IsValidResidue reports whether x is in [1, p-1]
func (s *System) IsValidResidue(x *big.Int) bool {
	return x != nil && x.Sign() > 0 && x.Cmp(s.P) < 0
}

// IsSubgroupMember reports whether x is in the order q subgroup.
func (s *System) IsSubgroupMember(x *big.Int) bool {
	if !s.IsValidResidue(x) {
		return false
	}
	return new(big.Int).Exp(x, s.Q, s.P).Cmp(bigOne) == 0
}

// inExponentRange reports whether x is in [0, q)
func (s *System) inExponentRange(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(s.Q) < 0
}

func (s *System) String() string {
	return fmt.Sprintf("System[p=%d bits, g=%s, order=%s]", s.P.BitLen(), s.G, s.Order)
}

// PublicKey is an ElGamal public key: a trustee coefficient, a trustee
// share key or the joint election key.
type PublicKey struct {
	*System
	Y *big.Int
}

func (pk *PublicKey) String() string {
	return fmt.Sprintf("pk:Y=%s", crypto.BigIntToJSON(pk.Y))
}

// Validate that the Y value is within range for the system params
func (pk *PublicKey) Validate() error {
	if pk.System == nil {
		return fmt.Errorf("PublicKey invalid: No ElGamal System Parameters")
	}
	if pk.Y == nil {
		return fmt.Errorf("PublicKey invalid: y missing")
	}
	// our ZKP scheme requires y \in [1, p-1]
	if pk.Y.Cmp(bigOne) == -1 {
		return fmt.Errorf("PublicKey invalid: y < 1")
	}
	if pk.Y.Cmp(pk.P) != -1 {
		return fmt.Errorf("PublicKey invalid: y > p-1")
	}
	return nil
}

// CipherText is an exponential ElGamal message (a, b) = (g^r, g^m h^r)
type CipherText struct {
	A, B *big.Int
}

// Mul does a homomorphic multiplication of two cipher texts
// we assume they were created with the same system.
// This function mutates the reciever and is designed to be
// part of an aggregation, so the canonical usage is:
//
//	var agg *CipherText
//	agg = agg.Mul(sys, other1) // first round simple sets to "other1"
//	agg = agg.Mul(sys, other2) // now set to other1 * other2
//
// As the plaintexts are encoded as g^m the product encrypts the sum.
func (ct *CipherText) Mul(sys *System, other *CipherText) *CipherText {
	if ct == nil {
		ct = &CipherText{}
	}
	if ct.A == nil {
		ct.A = new(big.Int).Set(other.A)
		ct.B = new(big.Int).Set(other.B)
	} else {
		ct.A.Mul(ct.A, other.A)
		ct.A.Mod(ct.A, sys.P)
		ct.B.Mul(ct.B, other.B)
		ct.B.Mod(ct.B, sys.P)
	}
	return ct
}

// Shift returns a new ciphertext (a, b / g^m), i.e. one that encrypts
// the plaintext minus m.
func (ct *CipherText) Shift(sys *System, gm *big.Int) (*CipherText, error) {
	inv, err := ModInverse(gm, sys.P)
	if err != nil {
		return nil, err
	}
	b := new(big.Int).Mul(ct.B, inv)
	b.Mod(b, sys.P)
	return &CipherText{A: new(big.Int).Set(ct.A), B: b}, nil
}

// Valid reports whether both components are residues mod p
func (ct *CipherText) Valid(sys *System) bool {
	return ct != nil && sys.IsValidResidue(ct.A) && sys.IsValidResidue(ct.B)
}

func (ct *CipherText) Equals(other *CipherText) bool {
	if ct == nil || other == nil || ct.A == nil || other.A == nil {
		return false
	}
	cmpA, cmpB := ct.A.Cmp(other.A), ct.B.Cmp(other.B)
	return cmpA == 0 && cmpB == 0
}

func (ct *CipherText) String() string {
	return fmt.Sprintf("CipherText[A=%s, B=%s]", ct.A, ct.B)
}
