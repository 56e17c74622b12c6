package crypto

import (
	"fmt"
	"strings"

	big "github.com/ncw/gmp"
)

// ByteOrder is the order integers are laid out in when they are hashed.
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "big"
	case LittleEndian:
		return "little"
	}
	return fmt.Sprintf("ByteOrder(%d)", int(o))
}

// ParseByteOrder accepts "big" or "little" (any case)
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "big", "big-endian", "bigendian":
		return BigEndian, nil
	case "little", "little-endian", "littleendian":
		return LittleEndian, nil
	}
	return BigEndian, fmt.Errorf("Unknown byte order: %q", s)
}

// ByteWidth is the number of bytes needed for any residue mod p.
func ByteWidth(p *big.Int) int {
	return (p.BitLen() + 7) / 8
}

// IntToFixedBytes encodes v into exactly width bytes. Every integer that
// enters a hash goes through here: minimal encodings make the boundaries
// between concatenated values ambiguous.
func IntToFixedBytes(v *big.Int, width int, order ByteOrder) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("Cannot encode nil integer")
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("Cannot encode negative integer %s", v)
	}
	if width <= 0 {
		return nil, fmt.Errorf("Invalid encoding width %d", width)
	}
	b := v.Bytes() // big-endian, minimal
	if len(b) > width {
		return nil, fmt.Errorf("Integer needs %d bytes, exceeds fixed width %d", len(b), width)
	}
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	if order == LittleEndian {
		reverse(out)
	}
	return out, nil
}

// FixedBytesToInt is the inverse of IntToFixedBytes.
func FixedBytesToInt(b []byte, order ByteOrder) *big.Int {
	if order == LittleEndian {
		c := make([]byte, len(b))
		copy(c, b)
		reverse(c)
		b = c
	}
	return new(big.Int).SetBytes(b)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
