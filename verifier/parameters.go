package verifier

import (
	"fmt"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto/elgamal"
)

// checkParameters validates the election constants, the trustee key sets
// and the joint key. It returns false when the record is in a different
// group from the configured one, as every later check would be meaningless.
func (r *run) checkParameters() bool {
	const stage = StageParameters
	p := r.e.Parameters
	proceed := true

	if p.Prime == nil || p.Prime.Cmp(r.sys.P) != 0 {
		r.report(stage, ParameterError, "parameters.prime", "Prime does not match the agreed prime")
		proceed = false
	}
	if p.Generator == nil || p.Generator.Cmp(r.sys.G) != 0 {
		r.report(stage, ParameterError, "parameters.generator", "Generator does not match the agreed generator")
		proceed = false
	}

	n, k := p.NumTrustees, p.Threshold
	if n <= 0 {
		r.report(stage, ParameterError, "parameters.num_trustees", "Number of trustees must be positive: got %d", n)
	}
	if big.NewInt(int64(n)).Cmp(r.sys.Q) >= 0 {
		// trustee indices must be distinct and nonzero mod q for interpolation
		r.report(stage, ParameterError, "parameters.num_trustees", "Number of trustees must be less than q: got %d", n)
		proceed = false
	}
	if k <= 0 || k > n {
		r.report(stage, ParameterError, "parameters.threshold", "Threshold must be in [1, %d]: got %d", n, k)
	}

	for i, m := range r.e.Manifest {
		if m.NumSelections < 1 {
			r.report(stage, ParameterError, fmt.Sprintf("manifest[%d]", i), "Contest %q has no selections", m.ID)
		}
		if m.MaxSelections < 1 || m.MaxSelections > m.NumSelections {
			r.report(stage, ParameterError, fmt.Sprintf("manifest[%d]", i), "Contest %q max selections must be in [1, %d]: got %d", m.ID, m.NumSelections, m.MaxSelections)
		}
	}

	if len(r.e.TrusteePublicKeys) != n {
		r.report(stage, ParameterError, "trustee_public_keys", "Expecting %d trustee key sets, got %d", n, len(r.e.TrusteePublicKeys))
	}
	// a key set is usable for share verification when every commitment is
	// in the subgroup, whatever its length
	r.keyUsable = make([]bool, len(r.e.TrusteePublicKeys))
	principals := make([]*big.Int, 0, len(r.e.TrusteePublicKeys))
	for i, tpk := range r.e.TrusteePublicKeys {
		path := fmt.Sprintf("trustee_public_keys[%d]", i)
		if tpk == nil || len(tpk.Coefficients) == 0 {
			r.report(stage, ParameterError, path, "Trustee[%d] published no coefficients", i+1)
			continue
		}
		if len(tpk.Coefficients) != k {
			r.report(stage, ParameterError, path, "Trustee[%d] has %d coefficients, expecting %d", i+1, len(tpk.Coefficients), k)
		}
		usable := true
		for j, c := range tpk.Coefficients {
			if c == nil || !r.sys.IsSubgroupMember(c.PublicKey) {
				r.report(stage, RangeError, fmt.Sprintf("%s[%d].public_key", path, j), "Trustee[%d] coefficient %d is not in the order q subgroup", i+1, j)
				usable = false
			}
		}
		r.keyUsable[i] = usable
		if usable {
			principals = append(principals, tpk.Principal())
		}
	}

	computed := elgamal.JointPublicKey(r.sys, principals)
	complete := len(principals) == len(r.e.TrusteePublicKeys) && len(principals) > 0
	switch {
	case r.e.JointPublicKey == nil || !r.sys.IsValidResidue(r.e.JointPublicKey):
		r.report(stage, RangeError, "joint_public_key", "Joint public key is not a residue mod p")
		if !complete {
			r.report(stage, StructureError, "joint_public_key", "Joint public key cannot be recomputed from the trustee keys")
			return false
		}
		// carry on with the key the trustees imply
		r.joint = computed
	case complete && computed.Y.Cmp(r.e.JointPublicKey) != 0:
		r.report(stage, ParameterError, "joint_public_key", "Joint public key is not the product of the trustee public keys")
		r.joint = &elgamal.PublicKey{System: r.sys, Y: r.e.JointPublicKey}
	default:
		r.joint = &elgamal.PublicKey{System: r.sys, Y: r.e.JointPublicKey}
	}
	return proceed
}
