package memory

import (
	"context"
	"sort"
	"sync"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal/errors"
	"ligandscreen/ports"
)

// RunRepository keeps finished runs in process memory. Used when no database is
// configured and in tests.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[core.RunID]*screening.ScreeningRun
}

// NewRunRepository creates an empty in-memory repository
func NewRunRepository() ports.RunRepository {
	return &RunRepository{runs: make(map[core.RunID]*screening.ScreeningRun)}
}

func (r *RunRepository) Save(ctx context.Context, run *screening.ScreeningRun) error {
	if run == nil || run.ID.IsEmpty() {
		return errors.InvalidInput("run must have an ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return errors.Conflict("screening run " + run.ID.String() + " already exists")
	}
	r.runs[run.ID] = clone(run)
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id core.RunID) (*screening.ScreeningRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, errors.NotFound("screening run " + id.String())
	}
	return clone(run), nil
}

// List returns runs newest first; limit <= 0 returns all
func (r *RunRepository) List(ctx context.Context, limit int) ([]*screening.ScreeningRun, error) {
	r.mu.RLock()
	out := make([]*screening.ScreeningRun, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, clone(run))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone copies the parts of a run a caller could mutate. Per-candidate outcomes
// are not retained.
func clone(run *screening.ScreeningRun) *screening.ScreeningRun {
	c := *run
	c.Outcomes = nil
	c.TopCandidates = append([]screening.ScoredCandidate(nil), run.TopCandidates...)
	if run.Summary != nil {
		s := *run.Summary
		s.Histogram = append([]screening.HistogramBin(nil), run.Summary.Histogram...)
		c.Summary = &s
	}
	return &c
}
