package hashchain

import (
	"testing"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto"
)

func testConfig() *Config {
	return &Config{
		Prime:       big.NewInt(227),
		Generator:   big.NewInt(69),
		NumTrustees: 5,
		Threshold:   3,
		Contests: []Contest{
			{ID: "mayor", NumSelections: 3, MaxSelections: 1},
			{ID: "council", NumSelections: 5, MaxSelections: 2},
		},
		Date:     "2021-11-02",
		Location: "Springfield",
	}
}

func TestDeterministic(t *testing.T) {
	a, err := BaseHash(32, crypto.BigEndian, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := BaseHash(32, crypto.BigEndian, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if a.Cmp(b) != 0 {
		t.Fatalf("base hash not deterministic: %s != %s", a, b)
	}
	// byte order is part of the encoding
	c, err := BaseHash(32, crypto.LittleEndian, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if a.Cmp(c) == 0 {
		t.Fatal("byte order did not change the hash")
	}
}

func TestOrderSensitive(t *testing.T) {
	x, y := big.NewInt(17), big.NewInt(42)
	h1, err := New(32, crypto.BigEndian).Int(x, y).Sum()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := New(32, crypto.BigEndian).Int(y, x).Sum()
	if err != nil {
		t.Fatal(err)
	}
	if h1.Cmp(h2) == 0 {
		t.Fatal("H(x, y) == H(y, x)")
	}

	base, _ := BaseHash(32, crypto.BigEndian, testConfig())
	swapped := testConfig()
	swapped.Contests[0], swapped.Contests[1] = swapped.Contests[1], swapped.Contests[0]
	other, err := BaseHash(32, crypto.BigEndian, swapped)
	if err != nil {
		t.Fatal(err)
	}
	if base.Cmp(other) == 0 {
		t.Fatal("contest order did not change the base hash")
	}

	keys := [][]*big.Int{{big.NewInt(3), big.NewInt(9)}, {big.NewInt(27), big.NewInt(81)}}
	e1, err := ExtendedBaseHash(32, crypto.BigEndian, keys, base)
	if err != nil {
		t.Fatal(err)
	}
	keys[0], keys[1] = keys[1], keys[0]
	e2, err := ExtendedBaseHash(32, crypto.BigEndian, keys, base)
	if err != nil {
		t.Fatal(err)
	}
	if e1.Cmp(e2) == 0 {
		t.Fatal("trustee order did not change the extended base hash")
	}
}

// strings are length prefixed, so moving a byte across a boundary is visible
func TestStringBoundaries(t *testing.T) {
	h1, _ := New(32, crypto.BigEndian).String("ab").String("c").Sum()
	h2, _ := New(32, crypto.BigEndian).String("a").String("bc").Sum()
	if h1.Cmp(h2) == 0 {
		t.Fatal("string boundaries are ambiguous")
	}
	cfg := testConfig()
	cfg.Date, cfg.Location = "2021-11-02S", "pringfield"
	moved, _ := BaseHash(32, crypto.BigEndian, cfg)
	base, _ := BaseHash(32, crypto.BigEndian, testConfig())
	if moved.Cmp(base) == 0 {
		t.Fatal("date/location boundary is ambiguous")
	}
}

func TestStickyError(t *testing.T) {
	_, err := New(1, crypto.BigEndian).Int(big.NewInt(1000)).Int(big.NewInt(1)).Sum()
	if err == nil {
		t.Fatal("overflowing value did not fail the hash")
	}
	_, err = New(32, crypto.BigEndian).Int(nil).SumMod(big.NewInt(113))
	if err == nil {
		t.Fatal("nil value did not fail the hash")
	}
}

func TestSumMod(t *testing.T) {
	q := big.NewInt(113)
	c, err := New(32, crypto.BigEndian).Uint(7).SumMod(q)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sign() < 0 || c.Cmp(q) >= 0 {
		t.Fatalf("challenge %s outside [0, q)", c)
	}
}
