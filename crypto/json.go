package crypto

import (
	"fmt"

	big "github.com/ncw/gmp"
)

// Election records carry every integer as a decimal string. JSON numbers
// cannot hold 2048bit values without loss in most consumers, so we never
// emit or accept them for group elements.

// BigIntToJSON renders x as the decimal string used in election records
func BigIntToJSON(x *big.Int) string {
	if x == nil {
		return ""
	}
	return x.String()
}

// BigIntFromJSON parses a non-negative decimal integer.
func BigIntFromJSON(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("Expecting decimal integer string, got empty string")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("Expecting decimal integer string, got: %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("Expecting non-negative integer, got: %s", s)
	}
	return n, nil
}
