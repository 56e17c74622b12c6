package verifier

import (
	"github.com/thechriswalker/egverify/crypto/hashchain"
)

// checkHashChain recomputes Q from the parameters and manifest and Q̄ from
// the trustee commitments. Proof challenges always use the recomputed Q̄,
// so a tampered stored hash shows up here once rather than in every proof.
// It returns false only when no Q̄ at all is available.
func (r *run) checkHashChain() bool {
	const stage = StageHashChain
	width, order := r.sys.HashWidth(), r.sys.Order

	q, err := hashchain.BaseHash(width, order, r.e.HashConfig())
	if err != nil {
		r.report(stage, HashChainMismatch, "base_hash", "Base hash cannot be recomputed: %v", err)
	} else if r.e.BaseHash == nil || q.Cmp(r.e.BaseHash) != 0 {
		r.report(stage, HashChainMismatch, "base_hash", "Stored base hash does not match the recomputed value %s", q)
	}
	if q == nil {
		// bind the extended hash to what was published instead
		q = r.e.BaseHash
	}

	if q != nil {
		r.qbar, err = hashchain.ExtendedBaseHash(width, order, r.e.Coefficients(), q)
		if err != nil {
			r.report(stage, HashChainMismatch, "extended_base_hash", "Extended base hash cannot be recomputed: %v", err)
		} else if r.e.ExtendedBaseHash == nil || r.qbar.Cmp(r.e.ExtendedBaseHash) != 0 {
			r.report(stage, HashChainMismatch, "extended_base_hash", "Stored extended base hash does not match the recomputed value %s", r.qbar)
		}
	}
	if r.qbar == nil {
		if r.e.ExtendedBaseHash == nil {
			r.report(stage, StructureError, "extended_base_hash", "No extended base hash to bind the proofs to")
			return false
		}
		r.qbar = r.e.ExtendedBaseHash
	}
	return true
}
