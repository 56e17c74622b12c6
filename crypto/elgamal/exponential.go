package elgamal

import (
	big "github.com/ncw/gmp"
)

// DiscreteLog finds m in [0, max] with g^m == target by walking the powers
// of g. Plaintexts in an election are small counts, so a linear walk is
// fine; it is only used to explain a failed cleartext check.
func DiscreteLog(sys *System, target *big.Int, max uint64) (uint64, bool) {
	last := big.NewInt(1)
	for counter := uint64(0); counter <= max; counter++ {
		if last.Cmp(target) == 0 {
			return counter, true
		}
		mulMod(last, last, sys.G, sys.P)
	}
	return 0, false
}
