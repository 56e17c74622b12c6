// Package verifier checks a published election record end to end: the
// group parameters, the hash chain binding the record together, every
// zero knowledge proof and every decryption.
//
// The verifier never stops at the first problem unless asked to. Each
// finding becomes a Diagnostic and the record is Valid only when there
// are none.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	big "github.com/ncw/gmp"
	"github.com/rs/zerolog"

	"github.com/thechriswalker/egverify/crypto/elgamal"
	"github.com/thechriswalker/egverify/record"
)

// Verifier holds the agreed group and the run options. It is safe to use
// for many records, concurrently.
type Verifier struct {
	sys  *elgamal.System
	opts *options
}

// New creates a verifier for records in the given group.
func New(sys *elgamal.System, opts ...Option) (*Verifier, error) {
	if sys == nil {
		return nil, &elgamal.ArithmeticError{Op: "New", Reason: "no group parameters"}
	}
	if err := sys.Validate(); err != nil {
		return nil, fmt.Errorf("configured group is not usable: %w", err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(o)
	}
	return &Verifier{sys: sys, opts: o}, nil
}

// Tasks is the number of progress ticks Verify will make for e.
func Tasks(e *record.Election) int {
	return len(e.TrusteePublicKeys) + len(e.CastBallots) + len(e.ContestTallies) + len(e.SpoiledBallots)
}

// Verify checks the record. The error is only non-nil when the verifier
// could not trust its own arithmetic; every problem with the record is
// reported in the result.
func (v *Verifier) Verify(ctx context.Context, e *record.Election) (*Result, error) {
	if e == nil {
		return nil, errors.New("no election record")
	}
	start := time.Now()
	if v.opts.deadline > 0 {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithTimeout(ctx, v.opts.deadline)
		defer cancelDeadline()
	}
	// stopped is cancelled on the first diagnostic in fail fast mode;
	// ctx on its own tells us about deadlines.
	stopped, stop := context.WithCancel(ctx)
	defer stop()

	r := &run{
		Verifier: v,
		e:        e,
		log:      v.opts.logger.With().Str("component", "verifier").Logger(),
		state:    Init,
		timings:  map[Stage]time.Duration{},
	}
	if v.opts.failFast {
		r.diags.onFirst = stop
	}

	err := r.execute(stopped)
	if err != nil {
		r.log.Error().Err(err).Str("state", r.state.String()).Msg("Verification aborted")
		return nil, err
	}

	res := &Result{
		State:       r.state,
		Diagnostics: r.diags.sorted(),
		Stats: Stats{
			Trustees:       len(e.TrusteePublicKeys),
			CastBallots:    len(e.CastBallots),
			ContestTallies: len(e.ContestTallies),
			SpoiledBallots: len(e.SpoiledBallots),
			Checks:         map[string]int64{},
			Timings:        r.timings,
			Elapsed:        time.Since(start),
		},
	}
	for i, name := range counterNames {
		res.Stats.Checks[name] = r.counters[i]
	}
	switch {
	case r.state == Done && len(res.Diagnostics) == 0:
		res.Verdict = Valid
	case r.state == Done || r.state == Failed:
		res.Verdict = Invalid
	default:
		res.Verdict = Incomplete
	}
	r.log.Debug().
		Str("verdict", res.Verdict.String()).
		Int("diagnostics", len(res.Diagnostics)).
		Dur("elapsed", res.Stats.Elapsed).
		Msg("Verification finished")
	return res, nil
}

// run is the state of a single Verify call.
type run struct {
	*Verifier
	e     *record.Election
	log   zerolog.Logger
	state State
	diags collector

	// set by the parameter and hash chain stages, read only afterwards
	joint     *elgamal.PublicKey
	qbar      *big.Int
	keyUsable []bool

	counters [numCounters]int64
	timings  map[Stage]time.Duration
}

func (r *run) report(stage Stage, kind Kind, path, format string, args ...interface{}) {
	d := Diagnostic{Stage: stage, Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
	r.log.Debug().
		Str("stage", stage.String()).
		Str("kind", kind.String()).
		Str("path", path).
		Msg(d.Message)
	r.diags.add(d)
}

func (r *run) transition(to State) {
	r.log.Debug().Str("from", r.state.String()).Str("to", to.String()).Msg("State transition")
	r.state = to
}

// halted reports whether the run must not start more work. Running out of
// time leaves the state where it is so the verdict becomes Incomplete.
func (r *run) halted(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	if r.opts.failFast && r.diags.len() > 0 {
		r.transition(Failed)
	}
	return true
}

func (r *run) timed(stage Stage, fn func()) {
	start := time.Now()
	fn()
	r.timings[stage] = time.Since(start)
	r.log.Debug().Str("stage", stage.String()).Dur("ms", r.timings[stage]).Msg("Stage complete")
}

func (r *run) execute(ctx context.Context) error {
	var proceed bool
	r.timed(StageParameters, func() { proceed = r.checkParameters() })
	if !proceed {
		// nothing downstream means anything in a different group
		r.transition(Failed)
		return nil
	}
	r.transition(ParametersChecked)
	if r.halted(ctx) {
		return nil
	}

	r.timed(StageHashChain, func() { proceed = r.checkHashChain() })
	if !proceed {
		r.transition(Failed)
		return nil
	}
	r.transition(HashChainVerified)
	if r.halted(ctx) {
		return nil
	}

	var err error
	r.timed(StageProofs, func() { err = r.checkProofs(ctx) })
	if err != nil {
		return err
	}
	if r.halted(ctx) {
		return nil
	}
	r.transition(ProofsVerified)

	r.timed(StageShares, func() { err = r.checkDecryptions(ctx) })
	if err != nil {
		return err
	}
	if r.halted(ctx) {
		return nil
	}
	r.transition(SharesVerified)
	r.transition(Done)
	return nil
}
