// Package run drives one replication: it asks a policy for verdicts and
// actions and applies them to a slayer machine until the policy stops.
package run

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

// DefaultMaxSteps bounds a replication whose policy never terminates.
const DefaultMaxSteps = 2_000_000

type Outcome uint8

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeStepLimit
	// OutcomeViolation marks a replication aborted on a contract error. It is
	// never a modeled failure.
	OutcomeViolation
)

var outcomeNames = [...]string{"SUCCESS", "FAILURE", "STEP_LIMIT", "VIOLATION"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("OUTCOME(%d)", uint8(o))
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	for i, n := range outcomeNames {
		if n == string(b) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// TraceFunc sees every applied action with the state it produced.
type TraceFunc func(step int, a policy.Action, st *slayer.State)

type Options struct {
	// Index is recorded in the result and covered by its digest.
	Index int
	// MaxSteps caps applied actions; 0 means DefaultMaxSteps.
	MaxSteps int
	Trace    TraceFunc
}

// Record is the result of one replication.
type Record struct {
	Index   int                `json:"index"`
	Seed    uint64             `json:"seed"`
	Policy  string             `json:"policy"`
	Outcome Outcome            `json:"outcome"`
	Steps   int                `json:"steps"`
	Elapsed time.Duration      `json:"elapsed_ns"`
	State   slayer.State       `json:"state"`
	Player  slayer.Progression `json:"player"`
	Digest  string             `json:"digest"`
}

// ComputeDigest hashes everything in r except the digest itself.
func (r Record) ComputeDigest() string {
	r.Digest = ""
	b, err := json.Marshal(r)
	if err != nil {
		// Every field has a total JSON encoding.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Env bundles the read-only inputs shared by every replication.
type Env struct {
	Catalogs *catalogs.Catalogs
	Costs    *costs.Model
}

// Run executes one replication seeded with seed. A non-nil error means the
// policy asked for an illegal transition; the returned record holds the state
// at that point with OutcomeViolation.
func Run(env Env, pol policy.Policy, start StartPoint, seed uint64, opts Options) (Record, error) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	m := slayer.NewMachine(env.Catalogs, env.Costs, NewRNG(seed), start.state(), start.progression())

	rec := Record{Index: opts.Index, Seed: seed, Policy: pol.Name()}
	finish := func(o Outcome) Record {
		rec.Outcome = o
		rec.State = *m.State()
		rec.Player = *m.Player()
		rec.Elapsed = rec.State.Acc.TimeSpent(env.Costs)
		rec.Digest = rec.ComputeDigest()
		return rec
	}

	for {
		switch pol.ShouldTerminate(m.State(), m.Player()) {
		case policy.Success:
			return finish(OutcomeSuccess), nil
		case policy.Failure:
			return finish(OutcomeFailure), nil
		}
		if rec.Steps >= maxSteps {
			return finish(OutcomeStepLimit), nil
		}

		a := pol.SelectAction(m.State(), m.Player())
		if err := Apply(m, a); err != nil {
			return finish(OutcomeViolation), fmt.Errorf("step %d %s: %w", rec.Steps, a, err)
		}
		rec.Steps++
		if opts.Trace != nil {
			opts.Trace(rec.Steps, a, m.State())
		}
	}
}

// Apply performs a on m.
func Apply(m *slayer.Machine, a policy.Action) error {
	switch a.Kind {
	case policy.Complete:
		return m.Complete()
	case policy.PointSkip:
		return m.Skip()
	case policy.Assign:
		_, err := m.Assign(a.Giver)
		return err
	case policy.UnlockStorage:
		return m.UnlockStorage()
	case policy.Store:
		return m.Store()
	case policy.Unstore:
		return m.Unstore()
	default:
		return fmt.Errorf("unknown action %s", a)
	}
}
