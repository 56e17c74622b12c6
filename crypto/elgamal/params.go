package elgamal

import (
	"strings"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto"
)

// RFC 3526 group 14: the 2048-bit MODP safe prime with generator 2.
// This is the default agreed group, a deployment overrides it through
// configuration when the election authority uses a different one.
const rfc3526Group14Hex = `
FFFFFFFF FFFFFFFF C90FDAA2 2168C234 C4C6628B 80DC1CD1
29024E08 8A67CC74 020BBEA6 3B139B22 514A0879 8E3404DD
EF9519B3 CD3A431B 302B0A6D F25F1437 4FE1356D 6D51C245
E485B576 625E7EC6 F44C42E9 A637ED6B 0BFF5CB6 F406B7ED
EE386BFB 5A899FA5 AE9F2411 7C4B1FE6 49286651 ECE45B3D
C2007CB8 A163BF05 98DA4836 1C55D39A 69163FA8 FD24CF5F
83655D23 DCA3AD96 1C62F356 208552BB 9ED52907 7096966D
670C354E 4ABC9804 F1746C08 CA18217C 32905E46 2E36CE3B
E39E772C 180E8603 9B2783A2 EC07A28F B5C55DF0 6F4C52C9
DE2BCBF6 95581718 3995497C EA956AE5 15D22618 98FA0510
15728E5A 8AACAA68 FFFFFFFF FFFFFFFF`

// RFC3526Group14 returns a fresh copy of the default group
func RFC3526Group14() *System {
	p, ok := new(big.Int).SetString(strings.Join(strings.Fields(rfc3526Group14Hex), ""), 16)
	if !ok {
		panic("bad RFC3526 constant")
	}
	sys, err := NewSystem(p, big.NewInt(2), crypto.BigEndian)
	if err != nil {
		panic(err)
	}
	return sys
}

// EightBit is a toy group, p = 227, q = 113, g = 69, for tests only.
func EightBit() *System {
	return &System{P: big.NewInt(227), Q: big.NewInt(113), G: big.NewInt(69)}
}
