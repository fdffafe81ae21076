package ports

import (
	"context"

	"ligandscreen/domain/screening"
)

// AffinityOracle scores one candidate against a target. Implementations must be safe
// for concurrent use and report failures as *screening.OracleError.
type AffinityOracle interface {
	Score(ctx context.Context, candidate screening.Candidate, target screening.TargetContext) (float64, error)
}

// AffinityOracleFunc adapts a function to AffinityOracle.
type AffinityOracleFunc func(ctx context.Context, candidate screening.Candidate, target screening.TargetContext) (float64, error)

func (f AffinityOracleFunc) Score(ctx context.Context, candidate screening.Candidate, target screening.TargetContext) (float64, error) {
	return f(ctx, candidate, target)
}
