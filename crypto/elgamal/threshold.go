package elgamal

import (
	"fmt"

	big "github.com/ncw/gmp"
)

// The threshold decryption scheme, as seen from the verifier.
//
// - Each of n trustees i publishes commitments K_{i,k} = g^{a_{i,k}} to the
//   k coefficients of a secret polynomial P_i, with K_{i,0} its public key.
// - The joint public key is the product of all the K_{i,0}.
// - A present trustee publishes its share M_i = a^{P_i(0)} of a decryption.
// - For an absent trustee i, each present trustee j publishes a fragment
//   M_{i,j} = a^{P_i(j)} and the share is rebuilt by interpolation at zero.
//
// Trustee indices are 1-based everywhere. VERY IMPORTANT: index 0 is the
// point the secret lives at.

// Lagrange returns the coefficient for index at zero over the given set
// of indices: prod_{l != index} l / (l - index) mod q.
func Lagrange(indices []int, index int, modulus *big.Int) (*big.Int, error) {
	r := new(big.Int).Set(bigOne)
	var idx, diff big.Int
	seen := false
	for _, i := range indices {
		if i == index {
			if seen {
				return nil, &ArithmeticError{Op: "Lagrange", Reason: fmt.Sprintf("index %d repeated", index)}
			}
			seen = true
			continue
		}
		// r = (r * i * inverse(i-index, modulus)) % modulus
		idx.SetInt64(int64(i))
		diff.SetInt64(int64(i - index))
		diff.Mod(&diff, modulus)
		inv, err := ModInverse(&diff, modulus)
		if err != nil {
			return nil, err
		}
		r.Mul(r, &idx)
		r.Mul(r, inv)
		r.Mod(r, modulus)
	}
	if !seen {
		return nil, &ArithmeticError{Op: "Lagrange", Reason: fmt.Sprintf("index %d not in set", index)}
	}
	return r, nil
}

// ShareVerificationKey computes g^{P_i(j)} = prod_k K_{i,k}^{j^k} from the
// published commitments of trustee i. It is the key a fragment M_{i,j}
// produced by trustee j is proved against.
func ShareVerificationKey(s *System, commitments []*big.Int, j int) (*PublicKey, error) {
	if j < 1 {
		return nil, &ArithmeticError{Op: "ShareVerificationKey", Reason: fmt.Sprintf("trustee index %d < 1", j)}
	}
	bigJ := big.NewInt(int64(j))
	calc, jK := big.NewInt(1), big.NewInt(1)
	tmp := new(big.Int)
	for _, K := range commitments {
		// K^{j^k}
		tmp.Exp(K, jK, s.P)
		mulMod(calc, calc, tmp, s.P)
		// raise $j^k$ another power by multiplying by J
		jK.Mul(jK, bigJ)
		jK.Mod(jK, s.Q)
	}
	return &PublicKey{System: s, Y: calc}, nil
}

// Reconstruct rebuilds a missing trustee's share from fragments and
// their weights: prod_j M_{i,j}^{w_{i,j}} mod p.
func Reconstruct(s *System, fragments, weights []*big.Int) (*big.Int, error) {
	if len(fragments) != len(weights) {
		return nil, &ArithmeticError{Op: "Reconstruct", Reason: "fragment and weight counts differ"}
	}
	M := big.NewInt(1)
	for i := range fragments {
		raised, err := ModPow(fragments[i], weights[i], s.P)
		if err != nil {
			return nil, err
		}
		mulMod(M, M, raised, s.P)
	}
	return M, nil
}

// CombineShares is the product of all trustee shares, M = prod_i M_i,
// which equals a^s for the joint secret s.
func CombineShares(s *System, shares []*big.Int) *big.Int {
	M := big.NewInt(1)
	for _, m := range shares {
		mulMod(M, M, m, s.P)
	}
	return M
}

// JointPublicKey is prod_i K_{i,0}
func JointPublicKey(s *System, principals []*big.Int) *PublicKey {
	return &PublicKey{System: s, Y: CombineShares(s, principals)}
}
