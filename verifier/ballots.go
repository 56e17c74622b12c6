package verifier

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/thechriswalker/egverify/record"
)

// checkProofs verifies every trustee's proofs of knowledge and every cast
// ballot, one task each.
func (r *run) checkProofs(ctx context.Context) error {
	r.checkTrackers()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.workers)

	for i := range r.e.TrusteePublicKeys {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			defer r.opts.progress()
			return r.checkTrustee(ctx, i)
		})
	}
	for b := range r.e.CastBallots {
		if ctx.Err() != nil {
			break
		}
		b := b
		g.Go(func() error {
			defer r.opts.progress()
			return r.checkBallot(ctx, b)
		})
	}
	return g.Wait()
}

// checkTrackers makes sure no ballot was cast twice.
func (r *run) checkTrackers() {
	seen := make(map[string]int, len(r.e.CastBallots))
	for i, b := range r.e.CastBallots {
		if b == nil {
			r.report(StageProofs, StructureError, fmt.Sprintf("cast_ballots[%d]", i), "Ballot missing")
			continue
		}
		t := b.Info.Tracker
		if first, ok := seen[t]; ok {
			r.report(StageProofs, StructureError, fmt.Sprintf("cast_ballots[%d].ballot_info.tracker", i), "Tracker %q was already used by cast_ballots[%d]", t, first)
			continue
		}
		seen[t] = i
	}
}

func (r *run) checkTrustee(ctx context.Context, i int) error {
	tpk := r.e.TrusteePublicKeys[i]
	if tpk == nil {
		return nil
	}
	for j, c := range tpk.Coefficients {
		if ctx.Err() != nil {
			return nil
		}
		if c == nil {
			continue
		}
		check := &SchnorrCheck{
			At:    fmt.Sprintf("trustee_public_keys[%d][%d].proof", i, j),
			Key:   c.PublicKey,
			Proof: c.Proof,
		}
		if _, err := r.verify(StageProofs, check); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) checkBallot(ctx context.Context, b int) error {
	ballot := r.e.CastBallots[b]
	if ballot == nil {
		return nil
	}
	path := fmt.Sprintf("cast_ballots[%d]", b)
	if want, source, ok := r.contestCount(); ok && len(ballot.Contests) != want {
		r.report(StageProofs, StructureError, path+".contests", "Ballot has %d contests, %s has %d", len(ballot.Contests), source, want)
	}
	for c, contest := range ballot.Contests {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.checkContest(ctx, fmt.Sprintf("%s.contests[%d]", path, c), c, contest); err != nil {
			return err
		}
	}
	return nil
}

// contestCount is the number of contests every ballot must have: the
// manifest's, or without one the first cast ballot's.
func (r *run) contestCount() (int, string, bool) {
	switch {
	case len(r.e.Manifest) > 0:
		return len(r.e.Manifest), "the manifest", true
	case len(r.e.CastBallots) > 0 && r.e.CastBallots[0] != nil:
		return len(r.e.CastBallots[0].Contests), "cast_ballots[0]", true
	}
	return 0, "", false
}

// contestShape is the shape contest c must have on every ballot, taken
// from the manifest or without one from the first cast ballot.
func (r *run) contestShape(c int) (record.ContestDescription, string, bool) {
	if len(r.e.Manifest) > 0 {
		if c < len(r.e.Manifest) {
			return r.e.Manifest[c], "the manifest", true
		}
		return record.ContestDescription{}, "", false
	}
	if len(r.e.CastBallots) == 0 || r.e.CastBallots[0] == nil {
		return record.ContestDescription{}, "", false
	}
	first := r.e.CastBallots[0].Contests
	if c >= len(first) || first[c] == nil {
		return record.ContestDescription{}, "", false
	}
	return record.ContestDescription{
		ID:            fmt.Sprintf("contests[%d]", c),
		NumSelections: len(first[c].Selections),
		MaxSelections: first[c].MaxSelections,
	}, "cast_ballots[0]", true
}

func (r *run) checkContest(ctx context.Context, path string, c int, contest *record.CastContest) error {
	if contest == nil || len(contest.Selections) == 0 {
		r.report(StageProofs, StructureError, path, "Contest has no selections")
		return nil
	}
	if m, source, ok := r.contestShape(c); ok {
		if len(contest.Selections) != m.NumSelections {
			r.report(StageProofs, StructureError, path+".selections", "Contest %q has %d selections, %s has %d", m.ID, len(contest.Selections), source, m.NumSelections)
		}
		if contest.MaxSelections != m.MaxSelections {
			r.report(StageProofs, StructureError, path+".max_selections", "Contest %q claims max selections %d, %s has %d", m.ID, contest.MaxSelections, source, m.MaxSelections)
		}
	}

	messages := contest.Messages()
	allValid := true
	for s := range contest.Selections {
		if ctx.Err() != nil {
			return nil
		}
		sp := fmt.Sprintf("%s.selections[%d]", path, s)
		if !messages[s].Valid(r.sys) {
			r.report(StageProofs, RangeError, sp+".message", "Selection is not a pair of residues mod p")
			allValid = false
			continue
		}
		check := &DisjunctiveCheck{At: sp, Message: messages[s], Proof: contest.Selections[s].Proof}
		if _, err := r.verify(StageProofs, check); err != nil {
			return err
		}
	}
	if !allValid {
		// the aggregate is undefined, the range errors say why
		return nil
	}
	if contest.MaxSelections < 0 {
		r.report(StageProofs, RangeError, path+".max_selections", "Negative selection limit %d", contest.MaxSelections)
		return nil
	}
	check := &SelectionLimitCheck{
		At:       path + ".num_selections_proof",
		Messages: messages,
		Limit:    contest.MaxSelections,
		Proof:    contest.NumSelectionsProof,
	}
	_, err := r.verify(StageProofs, check)
	return err
}
