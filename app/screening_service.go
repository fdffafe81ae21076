package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal"
	"ligandscreen/internal/config"
	"ligandscreen/internal/errors"
	"ligandscreen/internal/summary"
	"ligandscreen/ports"
)

// ScreeningRequest is one caller-facing screening job. Nil TopN/MinAffinity and a zero
// Concurrency fall back to the service defaults. Nil Candidates means the configured
// source; an empty non-nil slice is an empty run. A caller-chosen RunID must be a
// canonical UUID not used before.
type ScreeningRequest struct {
	RunID       core.RunID              `json:"runId,omitempty"`
	Target      screening.TargetContext `json:"target"`
	Candidates  []screening.Candidate   `json:"candidates,omitempty"`
	TopN        *int                    `json:"topN,omitempty"`
	MinAffinity *float64                `json:"minAffinity,omitempty"`
	Concurrency int                     `json:"concurrency,omitempty"`
}

// ServiceConfig holds per-run defaults and the timeouts around the engine
type ServiceConfig struct {
	TopN             int
	MinAffinity      float64
	Concurrency      int
	Timeout          time.Duration
	MaxCandidates    int
	RationaleTimeout time.Duration
	HistogramBins    int
}

// ServiceConfigFrom maps the application config onto service defaults
func ServiceConfigFrom(cfg *config.Config) ServiceConfig {
	return ServiceConfig{
		TopN:             cfg.Screening.TopN,
		MinAffinity:      cfg.Screening.MinAffinity,
		Concurrency:      cfg.Screening.Concurrency,
		Timeout:          cfg.Screening.Timeout,
		MaxCandidates:    cfg.Screening.MaxCandidates,
		RationaleTimeout: cfg.AI.RationaleTimeout,
	}
}

// ScreeningService owns everything around one engine run: parameter defaults and
// clamps, candidate loading, the overall deadline, summary statistics, the rationale
// for the winner, persistence and reporter fan-out.
type ScreeningService struct {
	engine    *ScreeningEngine
	source    ports.CandidateSource
	rationale ports.RationaleGenerator
	runs      ports.RunRepository
	reporters []ports.ResultReporter
	cfg       ServiceConfig
	active    atomic.Int64
	inFlight  sync.Map
	logger    *internal.Logger
}

// NewScreeningService creates the service. source, rationale and runs may be nil.
func NewScreeningService(
	engine *ScreeningEngine,
	source ports.CandidateSource,
	rationale ports.RationaleGenerator,
	runs ports.RunRepository,
	cfg ServiceConfig,
	reporters ...ports.ResultReporter,
) *ScreeningService {
	return &ScreeningService{
		engine:    engine,
		source:    source,
		rationale: rationale,
		runs:      runs,
		reporters: reporters,
		cfg:       cfg,
		logger:    internal.DefaultLogger.With("ScreeningService"),
	}
}

// Params resolves a request's knobs against the defaults
func (s *ScreeningService) Params(req ScreeningRequest) (screening.Params, error) {
	p := screening.Params{
		TopN:        s.cfg.TopN,
		MinAffinity: s.cfg.MinAffinity,
		Concurrency: s.cfg.Concurrency,
	}
	if req.TopN != nil {
		p.TopN = *req.TopN
	}
	if req.MinAffinity != nil {
		p.MinAffinity = *req.MinAffinity
	}
	switch {
	case req.Concurrency < 0:
		return p, errors.ConfigInvalidf("concurrency must be >= 1, got %d", req.Concurrency)
	case req.Concurrency > 0:
		p.Concurrency = req.Concurrency
	}

	p.TopN = config.ClampTopN(p.TopN)
	p.MinAffinity = config.ClampMinAffinity(p.MinAffinity)
	return p, p.Validate()
}

// Run executes one screening job and returns the finished run. Only configuration
// problems, rejected run IDs and candidate loading failures are returned as errors.
func (s *ScreeningService) Run(ctx context.Context, req ScreeningRequest) (*screening.ScreeningRun, error) {
	params, err := s.Params(req)
	if err != nil {
		return nil, err
	}
	if err := req.Target.Validate(); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID.IsEmpty() {
		runID = core.NewRunID()
	} else if err := core.ValidateRunID(runID); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	if err := s.claim(ctx, runID); err != nil {
		return nil, err
	}
	defer s.inFlight.Delete(runID)

	candidates, pool, origin, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	s.logger.Info("run %s: %d candidates from %s", runID, len(candidates), origin)
	run, err := s.engine.ScreenAs(runCtx, runID, candidates, req.Target, params)
	if err != nil {
		return nil, err
	}
	if pool > len(candidates) {
		run.TruncatedFrom = pool
	}

	run.Summary, err = summary.Compute(screening.Collect(candidates, run.Outcomes), s.cfg.HistogramBins)
	if err != nil {
		s.logger.Warn("run %s: summary statistics unavailable: %v", run.ID, err)
	}

	// The result is kept even when the caller has gone away.
	detached := context.WithoutCancel(ctx)
	s.explain(detached, run)
	s.publish(detached, run)
	return run, nil
}

// claim reserves runID for this call. An ID that is running or already stored is a conflict.
func (s *ScreeningService) claim(ctx context.Context, runID core.RunID) error {
	if _, running := s.inFlight.LoadOrStore(runID, struct{}{}); running {
		return errors.Conflict("screening run " + runID.String() + " is already running")
	}
	if s.runs == nil {
		return nil
	}
	_, err := s.runs.Get(ctx, runID)
	switch {
	case err == nil:
		s.inFlight.Delete(runID)
		return errors.Conflict("screening run " + runID.String() + " already exists")
	case !errors.HasCode(err, errors.CodeNotFound):
		s.inFlight.Delete(runID)
		return errors.Wrap(err, "failed to check run ID")
	}
	return nil
}

// candidates returns the candidates to screen and the size of the pool they came from.
func (s *ScreeningService) candidates(ctx context.Context, req ScreeningRequest) ([]screening.Candidate, int, string, error) {
	candidates := req.Candidates
	origin := "request"
	if candidates == nil {
		if s.source == nil {
			return nil, 0, "", errors.ConfigInvalid("no candidates supplied and no candidate source configured")
		}
		loaded, err := s.source.Load(ctx)
		if err != nil {
			return nil, 0, "", errors.Wrapf(err, "failed to load candidates from %s", s.source.Name())
		}
		candidates, origin = loaded, s.source.Name()
	}

	pool := len(candidates)
	if s.cfg.MaxCandidates > 0 && pool > s.cfg.MaxCandidates {
		s.logger.Info("truncating %d candidates to the first %d", pool, s.cfg.MaxCandidates)
		candidates = candidates[:s.cfg.MaxCandidates]
	}
	return candidates, pool, origin, nil
}

// explain asks for a rationale on rank 1 only. Failures leave it absent.
func (s *ScreeningService) explain(ctx context.Context, run *screening.ScreeningRun) {
	best, ok := run.Best()
	if !ok || s.rationale == nil {
		return
	}
	if s.cfg.RationaleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RationaleTimeout)
		defer cancel()
	}
	if text, ok := s.rationale.Explain(ctx, best, run.Target); ok {
		run.TopRationale = &text
	}
}

func (s *ScreeningService) publish(ctx context.Context, run *screening.ScreeningRun) {
	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			s.logger.Error("run %s: failed to persist: %v", run.ID, err)
		}
	}
	for _, r := range s.reporters {
		if err := r.Report(ctx, run); err != nil {
			s.logger.Error("run %s: reporter %T failed: %v", run.ID, r, err)
		}
	}
}

// Active returns the number of runs currently in progress
func (s *ScreeningService) Active() int64 {
	return s.active.Load()
}

// Get returns a stored run
func (s *ScreeningService) Get(ctx context.Context, id core.RunID) (*screening.ScreeningRun, error) {
	if s.runs == nil {
		return nil, errors.NotFound("screening run " + id.String())
	}
	return s.runs.Get(ctx, id)
}

// List returns stored runs, newest first
func (s *ScreeningService) List(ctx context.Context, limit int) ([]*screening.ScreeningRun, error) {
	if s.runs == nil {
		return []*screening.ScreeningRun{}, nil
	}
	return s.runs.List(ctx, limit)
}
