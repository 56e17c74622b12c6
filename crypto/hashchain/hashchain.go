// Package hashchain computes the SHA-256 commitments that bind an election
// record together: the base hash over the election configuration, the
// extended base hash over every trustee commitment, and the Fiat-Shamir
// challenges of the proofs.
//
// Every integer is written at a fixed width in a fixed byte order and every
// string is length prefixed, so no two distinct input sequences share an
// encoding.
package hashchain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto"
)

// Hasher is a running digest. The first encoding error sticks and is
// reported by Sum, so calls can be chained.
type Hasher struct {
	h     hash.Hash
	width int
	order crypto.ByteOrder
	err   error
}

// New creates a hasher that encodes integers at width bytes
func New(width int, order crypto.ByteOrder) *Hasher {
	return &Hasher{h: sha256.New(), width: width, order: order}
}

// Int appends each value at the fixed width
func (h *Hasher) Int(values ...*big.Int) *Hasher {
	for i, v := range values {
		if h.err != nil {
			return h
		}
		b, err := crypto.IntToFixedBytes(v, h.width, h.order)
		if err != nil {
			h.err = fmt.Errorf("hashing value %d: %w", i, err)
			return h
		}
		h.h.Write(b)
	}
	return h
}

// Uint appends a small non-negative integer at the fixed width
func (h *Hasher) Uint(v uint64) *Hasher {
	return h.Int(new(big.Int).SetUint64(v))
}

// String appends a 4 byte length followed by the UTF-8 bytes.
func (h *Hasher) String(s string) *Hasher {
	if h.err != nil {
		return h
	}
	var l [4]byte
	if h.order == crypto.LittleEndian {
		binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	} else {
		binary.BigEndian.PutUint32(l[:], uint32(len(s)))
	}
	h.h.Write(l[:])
	h.h.Write([]byte(s))
	return h
}

// Sum returns the digest read as an integer in the hasher's byte order.
func (h *Hasher) Sum() (*big.Int, error) {
	if h.err != nil {
		return nil, h.err
	}
	return crypto.FixedBytesToInt(h.h.Sum(nil), h.order), nil
}

// SumMod returns Sum() mod q, the form every challenge takes.
func (h *Hasher) SumMod(q *big.Int) (*big.Int, error) {
	n, err := h.Sum()
	if err != nil {
		return nil, err
	}
	return n.Mod(n, q), nil
}

// Contest is one manifest entry as it enters the base hash.
type Contest struct {
	ID            string
	NumSelections int
	MaxSelections int
}

// Config is everything the base hash commits to.
type Config struct {
	Prime       *big.Int
	Generator   *big.Int
	NumTrustees int
	Threshold   int
	Contests    []Contest
	Date        string
	Location    string
}

// BaseHash computes Q over (p, g, n, k, manifest, date, location).
// The manifest is written as its contest count followed by each contest,
// so a record without a manifest hashes a count of zero.
func BaseHash(width int, order crypto.ByteOrder, c *Config) (*big.Int, error) {
	if c.NumTrustees < 0 || c.Threshold < 0 {
		return nil, fmt.Errorf("negative trustee count or threshold")
	}
	h := New(width, order).
		Int(c.Prime, c.Generator).
		Uint(uint64(c.NumTrustees)).
		Uint(uint64(c.Threshold)).
		Uint(uint64(len(c.Contests)))
	for _, ct := range c.Contests {
		if ct.NumSelections < 0 || ct.MaxSelections < 0 {
			return nil, fmt.Errorf("contest %q has negative selection counts", ct.ID)
		}
		h.String(ct.ID).
			Uint(uint64(ct.NumSelections)).
			Uint(uint64(ct.MaxSelections))
	}
	return h.String(c.Date).String(c.Location).Sum()
}

// ExtendedBaseHash computes Q̄ over every coefficient public key in
// (trustee, coefficient) order followed by the base hash.
func ExtendedBaseHash(width int, order crypto.ByteOrder, coefficients [][]*big.Int, base *big.Int) (*big.Int, error) {
	h := New(width, order)
	for _, trustee := range coefficients {
		h.Int(trustee...)
	}
	return h.Int(base).Sum()
}
