package ports

import (
	"context"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
)

// ProgressReporter receives completion counts while a run is in flight.
// Called from worker goroutines; implementations must not block.
type ProgressReporter interface {
	Progress(runID core.RunID, completed, total int)
}

// ResultReporter consumes a finished run.
type ResultReporter interface {
	Report(ctx context.Context, run *screening.ScreeningRun) error
}

// RunRepository stores finished runs for later retrieval.
type RunRepository interface {
	Save(ctx context.Context, run *screening.ScreeningRun) error
	Get(ctx context.Context, id core.RunID) (*screening.ScreeningRun, error)
	List(ctx context.Context, limit int) ([]*screening.ScreeningRun, error)
}
