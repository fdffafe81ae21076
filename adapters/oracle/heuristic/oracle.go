package heuristic

import (
	"context"
	"math"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
)

// Oracle scores candidates with a deterministic descriptor heuristic. It stands in
// for the hosted predictor in demos and tests: identical inputs always produce
// identical affinities and no I/O is performed.
type Oracle struct{}

// NewOracle creates a new heuristic affinity oracle
func NewOracle() *Oracle {
	return &Oracle{}
}

// Score derives an affinity in [0, 15] from the SMILES hash, molecular weight and logP
func (o *Oracle) Score(ctx context.Context, c screening.Candidate, target screening.TargetContext) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, screening.NewOracleError(screening.OracleCancelled, c.SMILES, err)
	}
	if c.SMILES == "" {
		return 0, screening.InvalidResponse(c.SMILES, "empty SMILES")
	}

	// Base in [5, 9) from the SMILES digest. The target does not enter the score.
	seed := core.NewHash([]byte(c.SMILES)).Seed()
	base := 5.0 + 4.0*float64(seed%10000)/10000.0

	score := base + o.weightTerm(c.MolecularWeight) + o.lipophilicityTerm(c.LogP)
	return math.Max(0, math.Min(15, score)), nil
}

// weightTerm rewards molecules near 400 Da and penalises very small or large ones
func (o *Oracle) weightTerm(mw *float64) float64 {
	if mw == nil {
		return 0
	}
	d := (*mw - 400) / 150
	return 1.0 - d*d
}

// lipophilicityTerm peaks at logP 2.5
func (o *Oracle) lipophilicityTerm(logP *float64) float64 {
	if logP == nil {
		return 0
	}
	d := (*logP - 2.5) / 2
	return 0.75 - 0.75*d*d
}
