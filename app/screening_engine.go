package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal"
	"ligandscreen/internal/errors"
	"ligandscreen/ports"

	"golang.org/x/sync/errgroup"
)

// EngineConfig tunes the screening engine independently of per-run parameters.
type EngineConfig struct {
	// CallTimeout bounds every single oracle call. Zero disables the per-call bound.
	CallTimeout time.Duration
	// ProgressEvery throttles progress callbacks to one per N completions.
	ProgressEvery int
	// MaxLoggedFailures caps per-candidate WARN lines; the rest are only counted.
	MaxLoggedFailures int
	Progress          ports.ProgressReporter
	Logger            *internal.Logger
}

// ScreeningEngine fans candidates out to an AffinityOracle through a fixed pool of
// workers and reduces the outcomes to a ranked, thresholded run.
type ScreeningEngine struct {
	oracle            ports.AffinityOracle
	callTimeout       time.Duration
	progressEvery     int
	maxLoggedFailures int
	progress          ports.ProgressReporter
	logger            *internal.Logger
}

// NewScreeningEngine creates an engine bound to one oracle
func NewScreeningEngine(oracle ports.AffinityOracle, cfg EngineConfig) *ScreeningEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 1
	}
	if cfg.MaxLoggedFailures < 0 {
		cfg.MaxLoggedFailures = 0
	}
	return &ScreeningEngine{
		oracle:            oracle,
		callTimeout:       cfg.CallTimeout,
		progressEvery:     cfg.ProgressEvery,
		maxLoggedFailures: cfg.MaxLoggedFailures,
		progress:          cfg.Progress,
		logger:            logger.With("ScreeningEngine"),
	}
}

// Screen scores every candidate at most once with at most params.Concurrency calls in
// flight. Oracle failures never fail the run; only invalid configuration does. When ctx
// ends early, workers stop pulling, in-flight calls are abandoned and the run is built
// from the outcomes collected so far.
func (e *ScreeningEngine) Screen(
	ctx context.Context,
	candidates []screening.Candidate,
	target screening.TargetContext,
	params screening.Params,
) (*screening.ScreeningRun, error) {
	return e.ScreenAs(ctx, core.NewRunID(), candidates, target, params)
}

// ScreenAs is Screen with a caller-assigned run ID, so progress subscribers can
// attach before the run starts.
func (e *ScreeningEngine) ScreenAs(
	ctx context.Context,
	runID core.RunID,
	candidates []screening.Candidate,
	target screening.TargetContext,
	params screening.Params,
) (*screening.ScreeningRun, error) {
	if runID.IsEmpty() {
		return nil, errors.ConfigInvalid("run ID is required")
	}
	if e.oracle == nil {
		return nil, errors.ConfigInvalid("no affinity oracle configured")
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.RequireCandidates && len(candidates) == 0 {
		return nil, errors.ConfigInvalid("candidate set is empty")
	}

	total := len(candidates)
	outcomes := make([]screening.Outcome, total)
	for i := range outcomes {
		outcomes[i].Index = i
	}

	workers := params.Concurrency
	if workers > total {
		workers = total
	}

	e.logger.Info("run %s: screening %d candidates with %d workers (topN=%d, minAffinity=%.2f)",
		runID, total, workers, params.TopN, params.MinAffinity)

	start := time.Now()
	var cursor, completed atomic.Int64

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				i := int(cursor.Add(1) - 1)
				if i >= total {
					return nil
				}
				outcomes[i] = e.scoreOne(ctx, i, candidates[i], target)
				e.reportProgress(runID, int(completed.Add(1)), total)
			}
			return nil
		})
	}
	// Workers never return errors; oracle failures live in the slots.
	_ = g.Wait()

	scored := screening.Collect(candidates, outcomes)
	top := screening.Rank(scored, params.MinAffinity, params.TopN)

	run := &screening.ScreeningRun{
		ID:              runID,
		TotalScreened:   total,
		PassedThreshold: screening.CountPassed(scored, params.MinAffinity),
		TopCandidates:   top,
		Params:          params,
		Target:          target,
		Cancelled:       ctx.Err() != nil,
		Outcomes:        outcomes,
		CreatedAt:       start.UTC(),
	}
	e.tally(run)
	run.ProcessingDuration = time.Since(start)

	e.logger.Info("run %s: %d/%d attempted, %d failed, %d passed threshold, top %d returned in %v (cancelled=%v)",
		runID, run.Attempted, total, run.Failed, run.PassedThreshold, len(top), run.ProcessingDuration, run.Cancelled)

	return run, nil
}

type scoreResult struct {
	affinity float64
	err      error
}

// scoreOne performs exactly one oracle call. The call runs in its own goroutine so
// that an oracle ignoring its context cannot hold the worker past the per-call or
// run deadline; the abandoned goroutine only ever writes to its private channel.
func (e *ScreeningEngine) scoreOne(ctx context.Context, index int, c screening.Candidate, target screening.TargetContext) screening.Outcome {
	out := screening.Outcome{Index: index, Attempted: true}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
	}
	defer cancel()

	resCh := make(chan scoreResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- scoreResult{err: fmt.Errorf("oracle panic: %v", r)}
			}
		}()
		aff, err := e.oracle.Score(callCtx, c, target)
		resCh <- scoreResult{affinity: aff, err: err}
	}()

	select {
	case res := <-resCh:
		switch {
		case res.err != nil:
			out.Err = classifyOracleError(ctx, callCtx, c.SMILES, res.err)
		case math.IsNaN(res.affinity) || math.IsInf(res.affinity, 0):
			out.Err = screening.InvalidResponse(c.SMILES, "non-finite affinity %v", res.affinity)
		default:
			out.Affinity = res.affinity
		}
	case <-callCtx.Done():
		out.Err = classifyOracleError(ctx, callCtx, c.SMILES, callCtx.Err())
	}
	return out
}

// classifyOracleError wraps err as an OracleError, distinguishing a run-level stop
// from a per-call timeout.
func classifyOracleError(runCtx, callCtx context.Context, smiles string, err error) error {
	if runCtx.Err() != nil {
		return screening.NewOracleError(screening.OracleCancelled, smiles, runCtx.Err())
	}
	if oe, ok := screening.AsOracleError(err); ok {
		if oe.SMILES == "" {
			clone := *oe
			clone.SMILES = smiles
			return &clone
		}
		return oe
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return screening.NewOracleError(screening.OracleTimeout, smiles, err)
	}
	return screening.NewOracleError(screening.OracleFailed, smiles, err)
}

func (e *ScreeningEngine) reportProgress(runID core.RunID, completed, total int) {
	if e.progress == nil {
		return
	}
	if completed%e.progressEvery == 0 || completed == total {
		e.progress.Progress(runID, completed, total)
	}
}

// tally fills the attempt/failure counters and logs failures.
func (e *ScreeningEngine) tally(run *screening.ScreeningRun) {
	logged := 0
	byKind := make(map[screening.OracleErrorKind]int)
	for _, o := range run.Outcomes {
		if !o.Attempted {
			continue
		}
		run.Attempted++
		if o.Err == nil {
			continue
		}
		run.Failed++
		kind := screening.OracleFailed
		if oe, ok := screening.AsOracleError(o.Err); ok {
			kind = oe.Kind
		}
		byKind[kind]++
		if kind != screening.OracleCancelled && logged < e.maxLoggedFailures {
			e.logger.Warn("run %s: candidate %d excluded: %v", run.ID, o.Index, o.Err)
			logged++
		}
	}
	// A context that ends after the last outcome was recorded did not cut anything short.
	run.Cancelled = run.Cancelled && (run.Attempted < run.TotalScreened || byKind[screening.OracleCancelled] > 0)
	if run.Failed > 0 {
		e.logger.Info("run %s: %d oracle failures by kind: %v", run.ID, run.Failed, byKind)
	}
}
