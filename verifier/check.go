package verifier

import (
	"errors"
	"fmt"
	"sync/atomic"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto/elgamal"
)

// Check is a single proof to verify. The types in this file are the only
// implementations and dispatch switches over them.
type Check interface {
	where() string
}

// SchnorrCheck is a trustee's proof of knowledge of a coefficient.
type SchnorrCheck struct {
	At    string
	Key   *big.Int
	Proof *elgamal.SchnorrProof
}

// DisjunctiveCheck is a selection's zero-or-one proof.
type DisjunctiveCheck struct {
	At      string
	Message *elgamal.CipherText
	Proof   *elgamal.DisjunctiveProof
}

// SelectionLimitCheck is a contest's proof that its selections sum to Limit.
type SelectionLimitCheck struct {
	At       string
	Messages []*elgamal.CipherText
	Limit    int
	Proof    *elgamal.ChaumPedersenProof
}

// DecryptionShareCheck is a present trustee's proof that Share = a^{s_i}
// for the secret behind Key.
type DecryptionShareCheck struct {
	At      string
	Key     *big.Int
	Message *elgamal.CipherText
	Share   *big.Int
	Proof   *elgamal.ChaumPedersenProof
}

// FragmentCheck is trustee Trustee's proof of its fragment of a missing
// trustee's share, against the key derived from that trustee's
// Commitments.
type FragmentCheck struct {
	At          string
	Commitments []*big.Int
	Trustee     int
	Message     *elgamal.CipherText
	Fragment    *big.Int
	Proof       *elgamal.ChaumPedersenProof
}

func (c *SchnorrCheck) where() string         { return c.At }
func (c *DisjunctiveCheck) where() string     { return c.At }
func (c *SelectionLimitCheck) where() string  { return c.At }
func (c *DecryptionShareCheck) where() string { return c.At }
func (c *FragmentCheck) where() string        { return c.At }

const (
	countSchnorr = iota
	countDisjunctive
	countSelectionLimit
	countDecryptionShare
	countFragment
	numCounters
)

var counterNames = [numCounters]string{"schnorr", "disjunctive", "selection-limit", "decryption-share", "fragment"}

// dispatch verifies c against the group, the joint key and the extended
// base hash of the run.
func (r *run) dispatch(c Check) error {
	switch c := c.(type) {
	case *SchnorrCheck:
		atomic.AddInt64(&r.counters[countSchnorr], 1)
		pk := &elgamal.PublicKey{System: r.sys, Y: c.Key}
		return pk.VerifyProof(c.Proof)
	case *DisjunctiveCheck:
		atomic.AddInt64(&r.counters[countDisjunctive], 1)
		return elgamal.VerifyEncryptionProof(c.Proof, r.joint, c.Message, r.qbar)
	case *SelectionLimitCheck:
		atomic.AddInt64(&r.counters[countSelectionLimit], 1)
		return elgamal.VerifySelectionLimit(c.Proof, r.joint, c.Messages, c.Limit, r.qbar)
	case *DecryptionShareCheck:
		atomic.AddInt64(&r.counters[countDecryptionShare], 1)
		pk := &elgamal.PublicKey{System: r.sys, Y: c.Key}
		return elgamal.VerifyPartialDecryptionProof(c.Proof, pk, c.Message, c.Share, r.qbar)
	case *FragmentCheck:
		atomic.AddInt64(&r.counters[countFragment], 1)
		pk, err := elgamal.ShareVerificationKey(r.sys, c.Commitments, c.Trustee)
		if err != nil {
			return err
		}
		return elgamal.VerifyPartialDecryptionProof(c.Proof, pk, c.Message, c.Fragment, r.qbar)
	}
	return &elgamal.ArithmeticError{Op: "dispatch", Reason: fmt.Sprintf("unknown check type %T", c)}
}

// verify runs c and turns a failure into a ProofInvalid diagnostic.
// Only arithmetic faults come back as errors.
func (r *run) verify(stage Stage, c Check) (bool, error) {
	err := r.dispatch(c)
	if err == nil {
		return true, nil
	}
	var ae *elgamal.ArithmeticError
	if errors.As(err, &ae) {
		return false, err
	}
	r.report(stage, ProofInvalid, c.where(), err.Error())
	return false, nil
}
