package elgamal

import (
	"fmt"

	big "github.com/ncw/gmp"
)

// ArithmeticError means the numeric layer was asked to do something that
// has no answer. It is never a finding about a record: callers treat it
// as a defect and abort.
type ArithmeticError struct {
	Op     string
	Reason string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic error in %s: %s", e.Op, e.Reason)
}

// ModPow is base^exponent mod modulus for non-negative exponents.
func ModPow(base, exponent, modulus *big.Int) (*big.Int, error) {
	if modulus == nil || modulus.Cmp(bigOne) <= 0 {
		return nil, &ArithmeticError{Op: "ModPow", Reason: "modulus must be > 1"}
	}
	if base == nil || exponent == nil {
		return nil, &ArithmeticError{Op: "ModPow", Reason: "missing operand"}
	}
	if exponent.Sign() < 0 {
		return nil, &ArithmeticError{Op: "ModPow", Reason: "negative exponent"}
	}
	b := new(big.Int).Mod(base, modulus)
	return b.Exp(b, exponent, modulus), nil
}

// ModInverse returns v^-1 mod modulus, which exists iff gcd(v, modulus) = 1
func ModInverse(v, modulus *big.Int) (*big.Int, error) {
	if modulus == nil || modulus.Cmp(bigOne) <= 0 {
		return nil, &ArithmeticError{Op: "ModInverse", Reason: "modulus must be > 1"}
	}
	if v == nil {
		return nil, &ArithmeticError{Op: "ModInverse", Reason: "missing operand"}
	}
	r := new(big.Int).Mod(v, modulus)
	if r.Sign() == 0 {
		return nil, &ArithmeticError{Op: "ModInverse", Reason: "zero has no inverse"}
	}
	inv := new(big.Int).ModInverse(r, modulus)
	// confirm rather than trust the library on non-coprime input
	check := new(big.Int).Mul(inv, r)
	check.Mod(check, modulus)
	if check.Cmp(bigOne) != 0 {
		return nil, &ArithmeticError{Op: "ModInverse", Reason: fmt.Sprintf("%s not invertible mod %s", r, modulus)}
	}
	return inv, nil
}

// mulMod sets z = x*y mod p and returns z
func mulMod(z, x, y, p *big.Int) *big.Int {
	z.Mul(x, y)
	return z.Mod(z, p)
}
