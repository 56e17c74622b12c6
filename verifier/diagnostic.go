package verifier

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Stage is the part of the verification a diagnostic comes from.
type Stage int

const (
	StageParameters Stage = iota
	StageHashChain
	StageProofs
	StageShares
)

func (s Stage) String() string {
	switch s {
	case StageParameters:
		return "parameters"
	case StageHashChain:
		return "hash-chain"
	case StageProofs:
		return "proofs"
	case StageShares:
		return "shares"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Kind classifies a finding about the record.
type Kind int

const (
	// ParameterError is a malformed or disagreeing group parameter,
	// trustee count or threshold.
	ParameterError Kind = iota + 1
	// HashChainMismatch is a stored base or extended base hash that
	// differs from the recomputed one.
	HashChainMismatch
	// ProofInvalid is any failed proof or decryption identity.
	ProofInvalid
	// CoefficientMismatch is a published Lagrange weight that differs from
	// the recomputed one.
	CoefficientMismatch
	// RangeError is a group element or cleartext outside its domain.
	RangeError
	// TallyMismatch is an encrypted tally that is not the product of the
	// cast ballots.
	TallyMismatch
	// StructureError is a record whose shape is inconsistent: missing or
	// surplus entries, duplicates, counts that disagree.
	StructureError
)

var kindNames = map[Kind]string{
	ParameterError:      "ParameterError",
	HashChainMismatch:   "HashChainMismatch",
	ProofInvalid:        "ProofInvalid",
	CoefficientMismatch: "CoefficientMismatch",
	RangeError:          "RangeError",
	TallyMismatch:       "TallyMismatch",
	StructureError:      "StructureError",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Verdict is the overall outcome.
type Verdict int

const (
	Valid Verdict = iota
	Invalid
	// Incomplete means the deadline passed (or the caller cancelled)
	// before every check ran.
	Incomplete
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	case Incomplete:
		return "Incomplete"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// State is the position of a run in its lifecycle.
type State int

const (
	Init State = iota
	ParametersChecked
	HashChainVerified
	ProofsVerified
	SharesVerified
	Done
	Failed
)

var stateNames = [...]string{"Init", "ParametersChecked", "HashChainVerified", "ProofsVerified", "SharesVerified", "Done", "Failed"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Diagnostic is a single finding. Path locates the offending entity in
// the record using the JSON field names, e.g.
// "cast_ballots[3].contests[0].selections[1]".
type Diagnostic struct {
	Stage   Stage
	Kind    Kind
	Path    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s at %s: %s", d.Stage, d.Kind, d.Path, d.Message)
}

// Stats are counters for a run.
type Stats struct {
	Trustees       int
	CastBallots    int
	ContestTallies int
	SpoiledBallots int
	// Checks counts the proofs verified, by check type.
	Checks map[string]int64
	// Timings is the wall time spent in each stage.
	Timings map[Stage]time.Duration
	Elapsed time.Duration
}

// Result is the outcome of Verify.
type Result struct {
	Verdict     Verdict
	State       State
	Diagnostics []Diagnostic
	Stats       Stats
}

// Valid is shorthand for Verdict == Valid
func (r *Result) Valid() bool {
	return r.Verdict == Valid
}

// Count returns the number of diagnostics of the given kind.
func (r *Result) Count(k Kind) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// collector gathers diagnostics from concurrent tasks. When onFirst is
// set it is called once, on the first diagnostic.
type collector struct {
	mu      sync.Mutex
	list    []Diagnostic
	onFirst func()
}

func (c *collector) add(d Diagnostic) {
	c.mu.Lock()
	c.list = append(c.list, d)
	first := len(c.list) == 1
	c.mu.Unlock()
	if first && c.onFirst != nil {
		c.onFirst()
	}
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.list)
}

// sorted returns the diagnostics in a fixed order so that results do not
// depend on task scheduling.
func (c *collector) sorted() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.list))
	copy(out, c.list)
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Message < b.Message
	})
	return out
}
