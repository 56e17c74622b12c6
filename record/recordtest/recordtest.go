// Package recordtest builds honest election records over small groups
// for tests. Every value it publishes is one a correct election would
// publish, so tests start from a Valid record and break one thing.
package recordtest

import (
	"fmt"

	big "github.com/ncw/gmp"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/crypto/elgamal/egtest"
	"github.com/thechriswalker/egverify/crypto/hashchain"
	"github.com/thechriswalker/egverify/crypto/random"
	"github.com/thechriswalker/egverify/record"
)

// Ballot is the plaintext of a ballot: per contest, per selection, 0 or 1.
type Ballot [][]int64

// Options describes the election to build.
type Options struct {
	Trustees  int
	Threshold int
	// Missing lists the 1-based indices of trustees absent at decryption
	Missing []int
	// Limits is the selection limit L of each contest
	Limits []int
	Cast    []Ballot
	Spoiled []Ballot
	// Manifest adds the contest descriptions to the record
	Manifest bool
}

// Fixture is a built record with the private state behind it.
type Fixture struct {
	System   *elgamal.System
	Election *record.Election
	Trustees []*egtest.Trustee
	Joint    *elgamal.PublicKey
	Q, Qbar  *big.Int
	Present  []int
}

// Build creates a complete, valid election record. It panics on options
// that no honest election could produce.
func Build(sys *elgamal.System, opts Options) *Fixture {
	if opts.Threshold < 1 || opts.Threshold > opts.Trustees {
		panic("bad threshold")
	}
	f := &Fixture{System: sys}
	missing := map[int]bool{}
	for _, m := range opts.Missing {
		missing[m] = true
	}
	for i := 1; i <= opts.Trustees; i++ {
		if !missing[i] {
			f.Present = append(f.Present, i)
		}
	}
	if len(f.Present) < opts.Threshold {
		panic("not enough trustees present to decrypt")
	}

	e := &record.Election{
		Parameters: record.Parameters{
			Date:        "2020-03-03",
			Location:    "Test County",
			NumTrustees: opts.Trustees,
			Threshold:   opts.Threshold,
			Prime:       new(big.Int).Set(sys.P),
			Generator:   new(big.Int).Set(sys.G),
		},
	}
	f.Election = e

	for i := 1; i <= opts.Trustees; i++ {
		t := egtest.NewTrustee(sys, i, opts.Threshold, random.Int(sys.Q))
		f.Trustees = append(f.Trustees, t)
		tpk := &record.TrusteePublicKey{}
		for c := range t.Coeffs {
			tpk.Coefficients = append(tpk.Coefficients, &record.TrusteeCoefficient{
				PublicKey: t.Commitments[c],
				Proof:     t.Proofs[c],
			})
		}
		e.TrusteePublicKeys = append(e.TrusteePublicKeys, tpk)
	}

	if opts.Manifest {
		for c, limit := range opts.Limits {
			e.Manifest = append(e.Manifest, record.ContestDescription{
				ID:            fmt.Sprintf("contest-%d", c+1),
				NumSelections: contestWidth(opts, c),
				MaxSelections: limit,
			})
		}
	}

	var err error
	f.Q, err = hashchain.BaseHash(sys.HashWidth(), sys.Order, e.HashConfig())
	if err != nil {
		panic(err)
	}
	f.Qbar, err = hashchain.ExtendedBaseHash(sys.HashWidth(), sys.Order, e.Coefficients(), f.Q)
	if err != nil {
		panic(err)
	}
	e.BaseHash = new(big.Int).Set(f.Q)
	e.ExtendedBaseHash = new(big.Int).Set(f.Qbar)
	f.Joint = egtest.JointKey(sys, f.Trustees)
	e.JointPublicKey = new(big.Int).Set(f.Joint.Y)

	// running tallies per contest, per selection
	var sums [][]*elgamal.CipherText
	var counts [][]int64
	for b, ballot := range opts.Cast {
		cb := &record.CastBallot{Info: info(b, "cast")}
		for c, votes := range ballot {
			if len(sums) <= c {
				sums = append(sums, make([]*elgamal.CipherText, len(votes)))
				counts = append(counts, make([]int64, len(votes)))
			}
			cc := f.encryptContest(votes, opts.Limits[c])
			for s, sel := range cc.Selections {
				sums[c][s] = sums[c][s].Mul(sys, sel.Message)
				counts[c][s] += votes[s]
			}
			cb.Contests = append(cb.Contests, cc)
		}
		e.CastBallots = append(e.CastBallots, cb)
	}

	for c := range sums {
		var out []*record.Decryption
		for s, ct := range sums[c] {
			out = append(out, f.Decrypt(ct, counts[c][s]))
		}
		e.ContestTallies = append(e.ContestTallies, out)
	}

	for b, ballot := range opts.Spoiled {
		sb := &record.SpoiledBallot{Info: info(b, "spoiled")}
		for _, votes := range ballot {
			var out []*record.Decryption
			for _, v := range votes {
				ct, _ := egtest.Encrypt(f.Joint, v, nil)
				out = append(out, f.Decrypt(ct, v))
			}
			sb.Contests = append(sb.Contests, out)
		}
		e.SpoiledBallots = append(e.SpoiledBallots, sb)
	}
	return f
}

func contestWidth(opts Options, c int) int {
	for _, b := range opts.Cast {
		if c < len(b) {
			return len(b[c])
		}
	}
	for _, b := range opts.Spoiled {
		if c < len(b) {
			return len(b[c])
		}
	}
	return 0
}

func info(i int, kind string) record.BallotInfo {
	return record.BallotInfo{
		Date:       "2020-03-03",
		DeviceInfo: "test-device",
		Time:       fmt.Sprintf("12:%02d", i%60),
		Tracker:    fmt.Sprintf("%s-%04d", kind, i),
	}
}

func (f *Fixture) encryptContest(votes []int64, limit int) *record.CastContest {
	cc := &record.CastContest{MaxSelections: limit}
	cts := make([]*elgamal.CipherText, len(votes))
	rs := make([]*big.Int, len(votes))
	for s, v := range votes {
		cts[s], rs[s] = egtest.Encrypt(f.Joint, v, nil)
		cc.Selections = append(cc.Selections, &record.CastSelection{
			Message: cts[s],
			Proof:   egtest.ProveEncryption(f.Joint, cts[s], v, rs[s], f.Qbar),
		})
	}
	cc.NumSelectionsProof = egtest.ProveSelectionLimit(f.Joint, cts, rs, limit, f.Qbar)
	return cc
}

// Decrypt produces the published decryption of ct, which must encrypt
// cleartext. Missing trustees' shares are rebuilt from fragments.
func (f *Fixture) Decrypt(ct *elgamal.CipherText, cleartext int64) *record.Decryption {
	sys := f.System
	d := &record.Decryption{
		Cleartext: big.NewInt(cleartext),
		Decrypted: egtest.GPow(sys, cleartext),
		Encrypted: ct,
	}
	present := map[int]bool{}
	for _, j := range f.Present {
		present[j] = true
	}
	for _, t := range f.Trustees {
		if present[t.Index] {
			share, proof := egtest.ProveDecryption(sys, t.Secret(), ct, f.Qbar)
			d.Shares = append(d.Shares, &record.Share{Share: share, Proof: proof})
			continue
		}
		share := &record.Share{}
		values := []*big.Int{}
		weights := []*big.Int{}
		for _, frag := range t.Fragments(sys, ct, f.Present, f.Qbar) {
			share.Fragments = append(share.Fragments, &record.Fragment{
				Fragment:            frag.Value,
				LagrangeCoefficient: frag.Coefficient,
				Proof:               frag.Proof,
				TrusteeIndex:        frag.Trustee,
			})
			values = append(values, frag.Value)
			weights = append(weights, frag.Coefficient)
		}
		M, err := elgamal.Reconstruct(sys, values, weights)
		if err != nil {
			panic(err)
		}
		share.Share = M
		d.Shares = append(d.Shares, share)
	}
	return d
}
