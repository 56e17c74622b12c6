package verifier

import (
	"context"
	"testing"
	"time"

	big "github.com/ncw/gmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/crypto/elgamal/egtest"
	"github.com/thechriswalker/egverify/record"
	"github.com/thechriswalker/egverify/record/recordtest"
)

var testGroup = elgamal.New(64)

// the smallest record that exercises everything: n=5, k=3, one ballot,
// one contest with L=1 and selections (1, 0).
func smallElection(sys *elgamal.System, missing ...int) *recordtest.Fixture {
	return recordtest.Build(sys, recordtest.Options{
		Trustees:  5,
		Threshold: 3,
		Missing:   missing,
		Limits:    []int{1},
		Cast:      []recordtest.Ballot{{{1, 0}}},
	})
}

func largerElection(sys *elgamal.System) *recordtest.Fixture {
	return recordtest.Build(sys, recordtest.Options{
		Trustees:  5,
		Threshold: 3,
		Missing:   []int{2, 4},
		Limits:    []int{1, 2},
		Cast: []recordtest.Ballot{
			{{1, 0, 0}, {1, 1, 0, 0}},
			{{0, 1, 0}, {0, 1, 0, 1}},
			{{0, 1, 0}, {1, 0, 0, 1}},
			{{0, 0, 1}, {0, 0, 1, 1}},
		},
		Spoiled: []recordtest.Ballot{
			{{0, 0, 1}, {1, 0, 1, 0}},
		},
		Manifest: true,
	})
}

func verify(t *testing.T, f *recordtest.Fixture, opts ...Option) *Result {
	t.Helper()
	v, err := New(f.System, opts...)
	require.NoError(t, err)
	res, err := v.Verify(context.Background(), f.Election)
	require.NoError(t, err)
	return res
}

func flipByte(x *big.Int) *big.Int {
	b := x.Bytes()
	b[len(b)-1] ^= 0x01
	return new(big.Int).SetBytes(b)
}

func kinds(res *Result) []Kind {
	out := make([]Kind, len(res.Diagnostics))
	for i, d := range res.Diagnostics {
		out[i] = d.Kind
	}
	return out
}

func hasDiagnostic(res *Result, kind Kind, path string) bool {
	for _, d := range res.Diagnostics {
		if d.Kind == kind && d.Path == path {
			return true
		}
	}
	return false
}

func TestEndToEndSmallPrime(t *testing.T) {
	f := smallElection(elgamal.EightBit())
	res := verify(t, f)
	assert.Equal(t, Valid, res.Verdict, "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, Done, res.State)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, int64(2), res.Stats.Checks["disjunctive"])
	assert.Equal(t, int64(1), res.Stats.Checks["selection-limit"])
	assert.Equal(t, int64(15), res.Stats.Checks["schnorr"])
	assert.Equal(t, "1", f.Election.ContestTallies[0][0].Cleartext.String())
}

func TestEndToEndFlippedExtendedBaseHash(t *testing.T) {
	f := smallElection(elgamal.EightBit())
	f.Election.ExtendedBaseHash = flipByte(f.Election.ExtendedBaseHash)

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	require.Len(t, res.Diagnostics, 1, "diagnostics: %v", res.Diagnostics)
	d := res.Diagnostics[0]
	assert.Equal(t, HashChainMismatch, d.Kind)
	assert.Equal(t, StageHashChain, d.Stage)
	assert.Equal(t, "extended_base_hash", d.Path)
	// every proof was still checked
	assert.Equal(t, Done, res.State)
	assert.Equal(t, int64(2), res.Stats.Checks["disjunctive"])
	assert.Equal(t, int64(1), res.Stats.Checks["selection-limit"])
	assert.Equal(t, int64(10), res.Stats.Checks["decryption-share"])
}

func TestFlippedBaseHash(t *testing.T) {
	f := smallElection(testGroup)
	f.Election.BaseHash = flipByte(f.Election.BaseHash)
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, []Kind{HashChainMismatch}, kinds(res))
	assert.Equal(t, "base_hash", res.Diagnostics[0].Path)
}

func TestMissingTrustees(t *testing.T) {
	f := smallElection(testGroup, 2, 4)
	res := verify(t, f)
	assert.Equal(t, Valid, res.Verdict, "diagnostics: %v", res.Diagnostics)
	// per tally: 3 present shares, 2 missing trustees with 3 fragments each
	assert.Equal(t, int64(12), res.Stats.Checks["fragment"])
	assert.Equal(t, int64(6), res.Stats.Checks["decryption-share"])
}

func TestLargerElection(t *testing.T) {
	f := largerElection(testGroup)
	res := verify(t, f, WithWorkers(3))
	assert.Equal(t, Valid, res.Verdict, "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, 4, res.Stats.CastBallots)
	assert.Equal(t, 2, res.Stats.ContestTallies)
	assert.Equal(t, 1, res.Stats.SpoiledBallots)
}

func TestWrongGroup(t *testing.T) {
	f := smallElection(testGroup)
	f.Election.Parameters.Generator = new(big.Int).Add(testGroup.G, big.NewInt(1))
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, Failed, res.State)
	assert.True(t, hasDiagnostic(res, ParameterError, "parameters.generator"))
	// nothing past the parameters ran
	assert.Zero(t, res.Stats.Checks["schnorr"])
}

func TestBadThreshold(t *testing.T) {
	f := smallElection(testGroup)
	f.Election.Parameters.Threshold = 6
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, ParameterError, "parameters.threshold"))
	// the threshold is hashed, so the chain breaks as well
	assert.True(t, hasDiagnostic(res, HashChainMismatch, "base_hash"))
}

func TestJointKeyMismatch(t *testing.T) {
	f := smallElection(testGroup)
	f.Election.JointPublicKey = egtest.GPow(testGroup, 7)
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, ParameterError, "joint_public_key"))
}

func TestTamperedSchnorrProof(t *testing.T) {
	f := smallElection(testGroup)
	pok := f.Election.TrusteePublicKeys[2].Coefficients[1].Proof
	pok.U = new(big.Int).Add(pok.U, big.NewInt(1))
	pok.U.Mod(pok.U, testGroup.Q)

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	require.Len(t, res.Diagnostics, 1, "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, ProofInvalid, res.Diagnostics[0].Kind)
	assert.Equal(t, "trustee_public_keys[2][1].proof", res.Diagnostics[0].Path)
}

func TestSelectionOfTwo(t *testing.T) {
	f := smallElection(testGroup)
	sel := f.Election.CastBallots[0].Contests[0].Selections[0]
	ct, r := egtest.Encrypt(f.Joint, 2, nil)
	sel.Message = ct
	sel.Proof = egtest.ProveEncryption(f.Joint, ct, 1, r, f.Qbar)

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, ProofInvalid, "cast_ballots[0].contests[0].selections[0]"))
	assert.True(t, hasDiagnostic(res, ProofInvalid, "cast_ballots[0].contests[0].num_selections_proof"))
	assert.True(t, hasDiagnostic(res, TallyMismatch, "contest_tallies[0][0].encrypted_tally"))
}

func TestSelectionLimitExceeded(t *testing.T) {
	f := recordtest.Build(testGroup, recordtest.Options{
		Trustees:  3,
		Threshold: 2,
		Limits:    []int{1},
		Cast:      []recordtest.Ballot{{{1, 1, 0}}, {{0, 1, 0}}},
	})
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, ProofInvalid, "cast_ballots[0].contests[0].num_selections_proof"))
	assert.False(t, hasDiagnostic(res, ProofInvalid, "cast_ballots[1].contests[0].num_selections_proof"))
}

func TestSelectionOutOfRange(t *testing.T) {
	f := smallElection(testGroup)
	f.Election.CastBallots[0].Contests[0].Selections[1].Message.A = new(big.Int).Set(testGroup.P)
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, RangeError, "cast_ballots[0].contests[0].selections[1].message"))
	// the proofs over an out of range value are skipped
	assert.Equal(t, int64(1), res.Stats.Checks["disjunctive"])
	assert.Zero(t, res.Stats.Checks["selection-limit"])
}

func TestCoefficientMismatch(t *testing.T) {
	f := smallElection(testGroup, 2, 4)
	frag := f.Election.ContestTallies[0][0].Shares[1].Fragments[0]
	frag.LagrangeCoefficient = new(big.Int).Add(frag.LagrangeCoefficient, big.NewInt(1))

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	require.Len(t, res.Diagnostics, 1, "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, CoefficientMismatch, res.Diagnostics[0].Kind)
	assert.Equal(t, "contest_tallies[0][0].shares[1].fragments[0].lagrange_coefficient", res.Diagnostics[0].Path)
}

func TestForgedRecoveredShare(t *testing.T) {
	f := smallElection(testGroup, 2, 4)
	share := f.Election.ContestTallies[0][1].Shares[3]
	share.Share = new(big.Int).Mul(share.Share, testGroup.G)
	share.Share.Mod(share.Share, testGroup.P)

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, ProofInvalid, "contest_tallies[0][1].shares[3].share"))
	assert.True(t, hasDiagnostic(res, ProofInvalid, "contest_tallies[0][1].cleartext"))
}

func TestFragmentFromAbsentTrustee(t *testing.T) {
	f := smallElection(testGroup, 2, 4)
	// trustee 4 is absent and cannot help rebuild trustee 2
	f.Election.ContestTallies[0][0].Shares[1].Fragments[0].TrusteeIndex = 4
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, StructureError, "contest_tallies[0][0].shares[1].fragments[0].trustee_index"))
}

func TestWrongCleartext(t *testing.T) {
	f := smallElection(testGroup)
	d := f.Election.ContestTallies[0][0]
	d.Cleartext = big.NewInt(0)
	d.Decrypted = big.NewInt(1)

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	require.Len(t, res.Diagnostics, 1, "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, ProofInvalid, res.Diagnostics[0].Kind)
	assert.Contains(t, res.Diagnostics[0].Message, "they decrypt to 1")
}

func TestCleartextOutOfRange(t *testing.T) {
	f := smallElection(testGroup)
	d := f.Election.ContestTallies[0][0]
	d.Cleartext = big.NewInt(2)
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, RangeError, "contest_tallies[0][0].cleartext"))
}

func TestShareCount(t *testing.T) {
	f := smallElection(testGroup)
	d := f.Election.ContestTallies[0][1]
	d.Shares = d.Shares[:4]
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, []Kind{StructureError}, kinds(res))
}

func TestDuplicateTracker(t *testing.T) {
	f := largerElection(testGroup)
	f.Election.CastBallots[2].Info.Tracker = f.Election.CastBallots[0].Info.Tracker
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, []Kind{StructureError}, kinds(res))
	assert.Equal(t, "cast_ballots[2].ballot_info.tracker", res.Diagnostics[0].Path)
}

func TestManifestShape(t *testing.T) {
	f := largerElection(testGroup)
	f.Election.CastBallots[1].Contests[1].MaxSelections = 3
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, StructureError, "cast_ballots[1].contests[1].max_selections"))
	assert.True(t, hasDiagnostic(res, ProofInvalid, "cast_ballots[1].contests[1].num_selections_proof"))
}

func TestSpoiledBallotTampered(t *testing.T) {
	f := largerElection(testGroup)
	d := f.Election.SpoiledBallots[0].Contests[1][0]
	d.Shares[0].Proof.U = new(big.Int).Add(d.Shares[0].Proof.U, big.NewInt(1))
	d.Shares[0].Proof.U.Mod(d.Shares[0].Proof.U, testGroup.Q)
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, []Kind{ProofInvalid}, kinds(res))
	assert.Equal(t, "spoiled_ballots[0].contests[1][0].shares[0].proof", res.Diagnostics[0].Path)
}

// replaceContest swaps cast ballot b's contest c for an honest encryption
// of votes claiming limit selections, and republishes the contest's
// tallies with the given counts.
func replaceContest(f *recordtest.Fixture, b, c int, votes []int64, limit int, counts []int64) {
	pk := f.Joint
	cc := &record.CastContest{MaxSelections: limit}
	cts := make([]*elgamal.CipherText, len(votes))
	rs := make([]*big.Int, len(votes))
	for s, v := range votes {
		cts[s], rs[s] = egtest.Encrypt(pk, v, nil)
		cc.Selections = append(cc.Selections, &record.CastSelection{
			Message: cts[s],
			Proof:   egtest.ProveEncryption(pk, cts[s], v, rs[s], f.Qbar),
		})
	}
	cc.NumSelectionsProof = egtest.ProveSelectionLimit(pk, cts, rs, limit, f.Qbar)
	f.Election.CastBallots[b].Contests[c] = cc

	tallies := make([]*record.Decryption, len(counts))
	for s := range counts {
		var sum *elgamal.CipherText
		for _, ballot := range f.Election.CastBallots {
			sum = sum.Mul(f.System, ballot.Contests[c].Selections[s].Message)
		}
		tallies[s] = f.Decrypt(sum, counts[s])
	}
	f.Election.ContestTallies[c] = tallies
}

func TestOvervoteWithoutManifest(t *testing.T) {
	f := recordtest.Build(testGroup, recordtest.Options{
		Trustees:  3,
		Threshold: 2,
		Limits:    []int{1},
		Cast:      []recordtest.Ballot{{{1, 0, 0}}, {{0, 1, 0}}},
	})
	require.Equal(t, Valid, verify(t, f).Verdict)

	// every proof holds, but the second ballot votes for two
	replaceContest(f, 1, 0, []int64{1, 1, 0}, 2, []int64{2, 1, 0})
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, []Kind{StructureError}, kinds(res), "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, "cast_ballots[1].contests[0].max_selections", res.Diagnostics[0].Path)
	assert.Contains(t, res.Diagnostics[0].Message, "cast_ballots[0]")
}

func TestSelectionCountWithoutManifest(t *testing.T) {
	f := recordtest.Build(testGroup, recordtest.Options{
		Trustees:  3,
		Threshold: 2,
		Limits:    []int{1},
		Cast:      []recordtest.Ballot{{{1, 0, 0}}, {{0, 1, 0}}},
	})
	replaceContest(f, 1, 0, []int64{0, 1, 0, 0}, 1, []int64{1, 1, 0})
	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.True(t, hasDiagnostic(res, StructureError, "cast_ballots[1].contests[0].selections"))
}

func TestSpoiledOvervote(t *testing.T) {
	f := largerElection(testGroup)
	var contest []*record.Decryption
	for _, v := range []int64{1, 1, 0} {
		ct, _ := egtest.Encrypt(f.Joint, v, nil)
		contest = append(contest, f.Decrypt(ct, v))
	}
	f.Election.SpoiledBallots[0].Contests[0] = contest

	res := verify(t, f)
	assert.Equal(t, Invalid, res.Verdict)
	assert.Equal(t, []Kind{RangeError}, kinds(res), "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, "spoiled_ballots[0].contests[0]", res.Diagnostics[0].Path)
	assert.Contains(t, res.Diagnostics[0].Message, "at most 1 allowed")
}

func tamperMany(f *recordtest.Fixture) {
	for _, b := range f.Election.CastBallots {
		p := b.Contests[0].NumSelectionsProof
		p.U = new(big.Int).Add(p.U, big.NewInt(1))
		p.U.Mod(p.U, testGroup.Q)
	}
}

func TestStopOnFirstFailure(t *testing.T) {
	f := largerElection(testGroup)
	tamperMany(f)

	all := verify(t, f)
	assert.Equal(t, Invalid, all.Verdict)
	assert.Len(t, all.Diagnostics, 4)

	first := verify(t, f, WithStopOnFirstFailure(true), WithWorkers(1))
	assert.Equal(t, Invalid, first.Verdict)
	assert.Equal(t, Failed, first.State)
	assert.NotEmpty(t, first.Diagnostics)
	assert.LessOrEqual(t, len(first.Diagnostics), len(all.Diagnostics))
	assert.Zero(t, first.Stats.Checks["decryption-share"])
}

func TestDeterministicDiagnostics(t *testing.T) {
	f := largerElection(testGroup)
	tamperMany(f)
	f.Election.ExtendedBaseHash = flipByte(f.Election.ExtendedBaseHash)

	one := verify(t, f, WithWorkers(1))
	many := verify(t, f, WithWorkers(8))
	assert.Equal(t, one.Diagnostics, many.Diagnostics)
}

func TestCancelledIsIncomplete(t *testing.T) {
	f := smallElection(testGroup)
	v, err := New(f.System)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := v.Verify(ctx, f.Election)
	require.NoError(t, err)
	assert.Equal(t, Incomplete, res.Verdict)
	assert.Equal(t, ParametersChecked, res.State)
}

func TestDeadlineIsIncomplete(t *testing.T) {
	f := largerElection(testGroup)
	v, err := New(f.System, WithDeadline(time.Nanosecond))
	require.NoError(t, err)
	res, err := v.Verify(context.Background(), f.Election)
	require.NoError(t, err)
	assert.Equal(t, Incomplete, res.Verdict)
	assert.NotEqual(t, Done, res.State)
}

func TestProgress(t *testing.T) {
	f := largerElection(testGroup)
	var ticks int64
	done := make(chan struct{}, 64)
	res := verify(t, f, WithProgress(func() { done <- struct{}{} }))
	close(done)
	for range done {
		ticks++
	}
	assert.Equal(t, Valid, res.Verdict)
	assert.Equal(t, int64(Tasks(f.Election)), ticks)
}

type bogusCheck struct{}

func (bogusCheck) where() string { return "nowhere" }

func TestUnknownCheckIsFatal(t *testing.T) {
	r := &run{Verifier: &Verifier{sys: testGroup, opts: defaultOptions()}}
	_, err := r.verify(StageProofs, bogusCheck{})
	var ae *elgamal.ArithmeticError
	assert.ErrorAs(t, err, &ae)
	assert.Zero(t, r.diags.len())
}

func TestNewRejectsBadGroup(t *testing.T) {
	bad := elgamal.EightBit()
	bad.G = big.NewInt(2)
	_, err := New(bad)
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}
