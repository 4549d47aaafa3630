// Package montecarlo replicates runs in parallel and reduces them into a Report.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
)

type Options struct {
	Replications int
	// Workers bounds concurrent replications; 0 means GOMAXPROCS.
	Workers  int
	Seed     uint64
	Policy   string
	Start    run.StartPoint
	MaxSteps int

	// OnRecord is called once per finished replication, never concurrently,
	// in completion order. err is a contract violation or nil.
	OnRecord func(rec run.Record, err error)
	// Trace, if set, returns the action trace for replication i or nil.
	Trace func(i int) run.TraceFunc
}

func (o Options) validate() error {
	if o.Replications <= 0 {
		return fmt.Errorf("replications must be positive, got %d", o.Replications)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	if !policy.Valid(o.Policy) {
		return fmt.Errorf("unknown policy %q", o.Policy)
	}
	return nil
}

// Violation is a replication aborted by an illegal transition.
type Violation struct {
	Index int
	Seed  uint64
	Err   error
}

// Batch holds every replication's result, indexed by replication number.
// Records[i] of a violated replication holds its state at the violation.
type Batch struct {
	Records    []run.Record
	Violations []Violation
}

// SeedFor derives replication i's seed from the batch seed.
func SeedFor(batchSeed uint64, i int) uint64 {
	return run.SplitMix64(batchSeed + 0x9e3779b97f4a7c15*uint64(i+1))
}

// Run executes the batch on a bounded worker pool. Replications share only
// env, which is read-only. Cancelling ctx stops scheduling new replications.
func Run(ctx context.Context, env run.Env, opts Options) (*Batch, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	records := make([]run.Record, opts.Replications)
	errs := make([]error, opts.Replications)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < opts.Replications; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := replicate(env, opts, i)
			records[i], errs[i] = rec, err
			if opts.OnRecord != nil {
				mu.Lock()
				opts.OnRecord(rec, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return collect(records, errs), nil
}

// RunSequential executes the same replications one after another.
func RunSequential(env run.Env, opts Options) (*Batch, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	records := make([]run.Record, opts.Replications)
	errs := make([]error, opts.Replications)
	for i := range records {
		records[i], errs[i] = replicate(env, opts, i)
		if opts.OnRecord != nil {
			opts.OnRecord(records[i], errs[i])
		}
	}
	return collect(records, errs), nil
}

func replicate(env run.Env, opts Options, i int) (run.Record, error) {
	pol, err := policy.New(opts.Policy, env.Catalogs)
	if err != nil {
		return run.Record{Index: i}, err
	}
	ro := run.Options{Index: i, MaxSteps: opts.MaxSteps}
	if opts.Trace != nil {
		ro.Trace = opts.Trace(i)
	}
	return run.Run(env, pol, opts.Start, SeedFor(opts.Seed, i), ro)
}

func collect(records []run.Record, errs []error) *Batch {
	b := &Batch{Records: records}
	for i, err := range errs {
		if err != nil {
			b.Violations = append(b.Violations, Violation{Index: i, Seed: records[i].Seed, Err: err})
		}
	}
	return b
}

// Err joins all violations, or returns nil.
func (b *Batch) Err() error {
	var errs []error
	for _, v := range b.Violations {
		errs = append(errs, fmt.Errorf("replication %d (seed %d): %w", v.Index, v.Seed, v.Err))
	}
	return errors.Join(errs...)
}
