// Package random supplies randomness for the test provers and the
// synthetic groups they run in. The verifier itself is deterministic and
// never draws from here.
package random

import (
	"crypto/rand"
	"crypto/sha256"
	gbig "math/big"

	big "github.com/ncw/gmp"
)

func toStd(x *big.Int) *gbig.Int {
	return new(gbig.Int).SetBytes(x.Bytes())
}

func fromStd(x *gbig.Int) *big.Int {
	return new(big.Int).SetBytes(x.Bytes())
}

// Int returns a uniform random int in [0, max)
func Int(max *big.Int) *big.Int {
	r, err := rand.Int(rand.Reader, toStd(max))
	if err != nil {
		// the rand.Reader is broken. Nothing we can do.
		panic(err)
	}
	return fromStd(r)
}

// Oracle turns bytes into a deterministic integer in [0, max).
func Oracle(input []byte, max *big.Int) *big.Int {
	h := sha256.Sum256(input)
	x := new(big.Int).SetBytes(h[:])
	return x.Mod(x, max)
}

// SafePrimes returns P and Q where P has the given bit size and P = 2Q + 1.
// crypto/rand only does plain primes, so we draw until (P-1)/2 is prime too.
func SafePrimes(bits int) (*big.Int, *big.Int) {
	if bits < 3 {
		panic("safe primes need at least 3 bits")
	}
	q := new(gbig.Int)
	for {
		p, err := rand.Prime(rand.Reader, bits)
		// will only err on bad reader.
		if err != nil {
			panic(err)
		}
		q.Rsh(p, 1) // (p-1)/2 for odd p
		// we use 20 as that is what rand.Prime uses
		if q.ProbablyPrime(20) {
			return fromStd(p), fromStd(q)
		}
	}
}
