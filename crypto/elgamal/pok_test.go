package elgamal_test

import (
	"errors"
	"testing"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/crypto/elgamal/egtest"
)

func TestProofOfKnowledge(t *testing.T) {
	eg := elgamal.New(64)
	kp := egtest.GenerateKeyPair(eg)

	pok := egtest.ProveKnowledge(kp)

	if err := kp.PK.VerifyProof(pok); err != nil {
		t.Logf("ProofOfKnowledge verify fail: %v", err)
		t.Fail()
	}

	// screw it up
	pok.U.Add(pok.U, big.NewInt(1))
	pok.U.Mod(pok.U, eg.Q)

	if err := kp.PK.VerifyProof(pok); err == nil {
		t.Logf("ProofOfKnowledge verify passed incorrectly Response tampered")
		t.Fail()
	}
}

func copyProof(p *elgamal.SchnorrProof) *elgamal.SchnorrProof {
	return &elgamal.SchnorrProof{
		K: new(big.Int).Set(p.K),
		C: new(big.Int).Set(p.C),
		U: new(big.Int).Set(p.U),
	}
}

// every nonzero tweak of any component must be rejected
func TestProofOfKnowledgeExhaustive(t *testing.T) {
	eg := elgamal.EightBit()
	for x := int64(1); x < eg.Q.Int64(); x += 7 {
		kp := egtest.KeypairForSecret(eg, big.NewInt(x))
		pok := egtest.ProveKnowledge(kp)
		if err := kp.PK.VerifyProof(pok); err != nil {
			t.Fatalf("honest proof for x=%d rejected: %v", x, err)
		}
		for d := int64(1); d < eg.Q.Int64(); d++ {
			delta := big.NewInt(d)

			bad := copyProof(pok)
			bad.U.Add(bad.U, delta).Mod(bad.U, eg.Q)
			if kp.PK.VerifyProof(bad) == nil {
				t.Fatalf("x=%d: response tampered by %d accepted", x, d)
			}

			bad = copyProof(pok)
			bad.C.Add(bad.C, delta).Mod(bad.C, eg.Q)
			err := kp.PK.VerifyProof(bad)
			if !errors.Is(err, elgamal.ErrChallengeMismatch) {
				t.Fatalf("x=%d: challenge tampered by %d: expected mismatch, got %v", x, d, err)
			}
		}
		for d := int64(1); d < eg.P.Int64(); d++ {
			bad := copyProof(pok)
			bad.K.Add(bad.K, big.NewInt(d)).Mod(bad.K, eg.P)
			if kp.PK.VerifyProof(bad) == nil {
				t.Fatalf("x=%d: commitment tampered by %d accepted", x, d)
			}
		}
	}
}

func TestProofOfKnowledgeRejectsNonResidue(t *testing.T) {
	eg := elgamal.EightBit()
	kp := egtest.KeypairForSecret(eg, big.NewInt(5))
	pok := egtest.ProveKnowledge(kp)

	bad := &elgamal.PublicKey{System: eg, Y: new(big.Int).Set(eg.P)}
	if err := bad.VerifyProof(pok); !errors.Is(err, elgamal.ErrNotResidue) {
		t.Fatalf("expected ErrNotResidue, got %v", err)
	}
	if err := kp.PK.VerifyProof(&elgamal.SchnorrProof{K: pok.K, C: pok.C}); !errors.Is(err, elgamal.ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}
