package ports

import (
	"context"

	"ligandscreen/domain/screening"
)

// RationaleGenerator explains the best-ranked candidate. It is best effort: any
// failure is reported as ok=false, never as an error.
type RationaleGenerator interface {
	Explain(ctx context.Context, best screening.ScoredCandidate, target screening.TargetContext) (text string, ok bool)
}
