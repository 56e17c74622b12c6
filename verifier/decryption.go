package verifier

import (
	"context"
	"fmt"

	big "github.com/ncw/gmp"
	"golang.org/x/sync/errgroup"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/record"
)

// checkDecryptions verifies every contest tally and every spoiled ballot,
// one task each.
func (r *run) checkDecryptions(ctx context.Context) error {
	r.checkTallyShape()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.workers)

	for c := range r.e.ContestTallies {
		if ctx.Err() != nil {
			break
		}
		c := c
		g.Go(func() error {
			defer r.opts.progress()
			return r.checkTally(ctx, c)
		})
	}
	for b := range r.e.SpoiledBallots {
		if ctx.Err() != nil {
			break
		}
		b := b
		g.Go(func() error {
			defer r.opts.progress()
			return r.checkSpoiled(ctx, b)
		})
	}
	return g.Wait()
}

// checkTallyShape compares the tallied contests with the manifest, or
// failing that, with the first cast ballot.
func (r *run) checkTallyShape() {
	want, source, ok := r.contestCount()
	if !ok {
		return
	}
	if len(r.e.ContestTallies) != want {
		r.report(StageShares, StructureError, "contest_tallies", "Expecting %d contest tallies from %s, got %d", want, source, len(r.e.ContestTallies))
	}
	for c, tallies := range r.e.ContestTallies {
		if m, source, ok := r.contestShape(c); ok && len(tallies) != m.NumSelections {
			r.report(StageShares, StructureError, fmt.Sprintf("contest_tallies[%d]", c), "Contest %q has %d tallies, %s has %d selections", m.ID, len(tallies), source, m.NumSelections)
		}
	}
}

func (r *run) checkTally(ctx context.Context, c int) error {
	tallies := r.e.ContestTallies[c]
	path := fmt.Sprintf("contest_tallies[%d]", c)
	r.checkTallyProduct(path, c, tallies)
	ballots := int64(len(r.e.CastBallots))
	for s, d := range tallies {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.checkDecryption(ctx, fmt.Sprintf("%s[%d]", path, s), "tally", d, ballots); err != nil {
			return err
		}
	}
	return nil
}

// checkTallyProduct recomputes each encrypted tally as the product of the
// matching selection of every cast ballot.
func (r *run) checkTallyProduct(path string, c int, tallies []*record.Decryption) {
	if len(r.e.CastBallots) == 0 {
		return
	}
	sums := make([]*elgamal.CipherText, len(tallies))
	for b, ballot := range r.e.CastBallots {
		if ballot == nil || c >= len(ballot.Contests) || ballot.Contests[c] == nil || len(ballot.Contests[c].Selections) != len(tallies) {
			r.report(StageShares, StructureError, path, "Cast ballot %d does not match the shape of this contest tally", b)
			return
		}
		for s, sel := range ballot.Contests[c].Selections {
			if sel == nil || !sel.Message.Valid(r.sys) {
				// already reported as a range error
				return
			}
			sums[s] = sums[s].Mul(r.sys, sel.Message)
		}
	}
	for s, d := range tallies {
		if d == nil {
			continue
		}
		if !sums[s].Equals(d.Encrypted) {
			r.report(StageShares, TallyMismatch, fmt.Sprintf("%s[%d].encrypted_tally", path, s), "Encrypted tally is not the product of the cast ballots")
		}
	}
}

func (r *run) checkSpoiled(ctx context.Context, b int) error {
	ballot := r.e.SpoiledBallots[b]
	path := fmt.Sprintf("spoiled_ballots[%d]", b)
	if ballot == nil {
		r.report(StageShares, StructureError, path, "Ballot missing")
		return nil
	}
	if want, source, ok := r.contestCount(); ok && len(ballot.Contests) != want {
		r.report(StageShares, StructureError, path+".contests", "Ballot has %d contests, %s has %d", len(ballot.Contests), source, want)
	}
	for c, contest := range ballot.Contests {
		cp := fmt.Sprintf("%s.contests[%d]", path, c)
		m, source, shaped := r.contestShape(c)
		if shaped && len(contest) != m.NumSelections {
			r.report(StageShares, StructureError, cp, "Contest %q has %d selections, %s has %d", m.ID, len(contest), source, m.NumSelections)
		}
		for s, d := range contest {
			if ctx.Err() != nil {
				return nil
			}
			// a spoiled selection is a single 0 or 1
			if err := r.checkDecryption(ctx, fmt.Sprintf("%s[%d]", cp, s), "message", d, 1); err != nil {
				return err
			}
		}
		if !shaped {
			continue
		}
		if chosen := selected(contest); chosen > int64(m.MaxSelections) {
			r.report(StageShares, RangeError, cp, "Contest %q decrypts to %d selections, at most %d allowed", m.ID, chosen, m.MaxSelections)
		}
	}
	return nil
}

// selected counts the selections whose cleartext is 1.
func selected(contest []*record.Decryption) int64 {
	var n int64
	for _, d := range contest {
		if d != nil && d.Cleartext != nil && d.Cleartext.Cmp(big.NewInt(1)) == 0 {
			n++
		}
	}
	return n
}

// checkDecryption verifies one decrypted value: each share's proof, or
// its fragments and their reconstruction, then B = M * g^t with
// M = prod M_i and 0 <= t <= limit. field is the suffix of the record's
// encrypted_ and decrypted_ keys.
func (r *run) checkDecryption(ctx context.Context, path, field string, d *record.Decryption, limit int64) error {
	const stage = StageShares
	if d == nil {
		r.report(stage, StructureError, path, "Decryption missing")
		return nil
	}
	ct := d.Encrypted
	if !ct.Valid(r.sys) {
		r.report(stage, RangeError, path+".encrypted_"+field, "Encrypted value is not a pair of residues mod p")
		return nil
	}
	n := r.e.Parameters.NumTrustees
	if len(d.Shares) != n {
		r.report(stage, StructureError, path+".shares", "Expecting %d shares, got %d", n, len(d.Shares))
		return nil
	}

	// trustees whose own share is published can supply fragments
	present := map[int]bool{}
	for i, s := range d.Shares {
		if s != nil && !s.Recovered() {
			present[i+1] = true
		}
	}

	combinable := true
	shares := make([]*big.Int, len(d.Shares))
	for i, s := range d.Shares {
		if ctx.Err() != nil {
			return nil
		}
		sp := fmt.Sprintf("%s.shares[%d]", path, i)
		if s == nil {
			r.report(stage, StructureError, sp, "Share missing")
			combinable = false
			continue
		}
		if !r.sys.IsValidResidue(s.Share) {
			r.report(stage, RangeError, sp+".share", "Share is not a residue mod p")
			combinable = false
			continue
		}
		shares[i] = s.Share
		var err error
		if s.Recovered() {
			err = r.checkRecovery(sp, i+1, ct, s, present)
		} else {
			err = r.checkShare(sp, i+1, ct, s)
		}
		if err != nil {
			return err
		}
	}
	if !combinable {
		return nil
	}

	if d.Cleartext == nil {
		r.report(stage, RangeError, path+".cleartext", "Cleartext missing")
		return nil
	}
	if d.Cleartext.Sign() < 0 || d.Cleartext.Cmp(big.NewInt(limit)) > 0 {
		r.report(stage, RangeError, path+".cleartext", "Cleartext %s outside [0, %d]", d.Cleartext, limit)
		return nil
	}
	if !r.sys.IsValidResidue(d.Decrypted) {
		r.report(stage, RangeError, path+".decrypted_"+field, "Decrypted value is not a residue mod p")
		return nil
	}
	gt, err := elgamal.ModPow(r.sys.G, d.Cleartext, r.sys.P)
	if err != nil {
		return err
	}
	if gt.Cmp(d.Decrypted) != 0 {
		r.report(stage, ProofInvalid, path+".decrypted_"+field, "Decrypted value is not g^%s", d.Cleartext)
	}
	M := elgamal.CombineShares(r.sys, shares)
	expect := new(big.Int).Mul(M, gt)
	expect.Mod(expect, r.sys.P)
	if expect.Cmp(ct.B) != 0 {
		msg := fmt.Sprintf("Shares do not decrypt to the cleartext %s", d.Cleartext)
		if pt, err := ct.Shift(r.sys, M); err == nil {
			if m, ok := elgamal.DiscreteLog(r.sys, pt.B, uint64(limit)); ok {
				msg = fmt.Sprintf("%s: they decrypt to %d", msg, m)
			}
		}
		r.report(stage, ProofInvalid, path+".cleartext", "%s", msg)
	}
	return nil
}

// checkShare verifies a present trustee's proof of its share.
func (r *run) checkShare(path string, trustee int, ct *elgamal.CipherText, s *record.Share) error {
	if s.Proof == nil {
		r.report(StageShares, StructureError, path, "Trustee[%d] share has neither a proof nor fragments", trustee)
		return nil
	}
	tpk := r.trusteeKey(trustee)
	if tpk == nil {
		r.report(StageShares, StructureError, path, "Trustee[%d] has no usable public key", trustee)
		return nil
	}
	_, err := r.verify(StageShares, &DecryptionShareCheck{
		At:      path + ".proof",
		Key:     tpk.Principal(),
		Message: ct,
		Share:   s.Share,
		Proof:   s.Proof,
	})
	return err
}

// checkRecovery verifies the fragments of a missing trustee's share, their
// Lagrange weights and that they rebuild the published share.
func (r *run) checkRecovery(path string, missing int, ct *elgamal.CipherText, s *record.Share, present map[int]bool) error {
	const stage = StageShares
	tpk := r.trusteeKey(missing)
	if tpk == nil {
		r.report(stage, StructureError, path, "Trustee[%d] has no usable public key to check fragments against", missing)
		return nil
	}
	k := r.e.Parameters.Threshold
	if len(s.Fragments) < k {
		r.report(stage, StructureError, path+".fragments", "Trustee[%d] share rebuilt from %d fragments, at least %d needed", missing, len(s.Fragments), k)
		return nil
	}

	indices := make([]int, 0, len(s.Fragments))
	seen := map[int]bool{}
	usable := true
	for f, frag := range s.Fragments {
		fp := fmt.Sprintf("%s.fragments[%d]", path, f)
		switch {
		case frag == nil:
			r.report(stage, StructureError, fp, "Fragment missing")
			usable = false
			continue
		case seen[frag.TrusteeIndex]:
			r.report(stage, StructureError, fp+".trustee_index", "Trustee[%d] supplied more than one fragment", frag.TrusteeIndex)
			usable = false
			continue
		case !present[frag.TrusteeIndex]:
			r.report(stage, StructureError, fp+".trustee_index", "Fragment from Trustee[%d], who is not a present trustee", frag.TrusteeIndex)
			usable = false
			continue
		}
		seen[frag.TrusteeIndex] = true
		indices = append(indices, frag.TrusteeIndex)
	}
	if !usable {
		return nil
	}

	values := make([]*big.Int, len(s.Fragments))
	weights := make([]*big.Int, len(s.Fragments))
	for f, frag := range s.Fragments {
		fp := fmt.Sprintf("%s.fragments[%d]", path, f)
		if !r.sys.IsValidResidue(frag.Fragment) {
			r.report(stage, RangeError, fp+".fragment", "Fragment is not a residue mod p")
			usable = false
			continue
		}
		if _, err := r.verify(stage, &FragmentCheck{
			At:          fp + ".proof",
			Commitments: tpk.Commitments(),
			Trustee:     frag.TrusteeIndex,
			Message:     ct,
			Fragment:    frag.Fragment,
			Proof:       frag.Proof,
		}); err != nil {
			return err
		}
		w, err := elgamal.Lagrange(indices, frag.TrusteeIndex, r.sys.Q)
		if err != nil {
			return err
		}
		if frag.LagrangeCoefficient == nil || w.Cmp(frag.LagrangeCoefficient) != 0 {
			r.report(stage, CoefficientMismatch, fp+".lagrange_coefficient", "Expecting Lagrange coefficient %s for Trustee[%d]", w, frag.TrusteeIndex)
		}
		values[f], weights[f] = frag.Fragment, w
	}
	if !usable {
		return nil
	}
	rebuilt, err := elgamal.Reconstruct(r.sys, values, weights)
	if err != nil {
		return err
	}
	if rebuilt.Cmp(s.Share) != 0 {
		r.report(stage, ProofInvalid, path+".share", "Trustee[%d] share does not match the reconstruction from its fragments", missing)
	}
	return nil
}

// trusteeKey returns the 1-based trustee's key set if every commitment in
// it passed the parameter stage.
func (r *run) trusteeKey(trustee int) *record.TrusteePublicKey {
	i := trustee - 1
	if i < 0 || i >= len(r.keyUsable) || !r.keyUsable[i] {
		return nil
	}
	return r.e.TrusteePublicKeys[i]
}
