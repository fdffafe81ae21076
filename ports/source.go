package ports

import (
	"context"

	"ligandscreen/domain/screening"
)

// CandidateSource supplies an ordered, finite candidate pool. Each Load returns a slice
// the caller owns; sources keep no process-wide cache.
type CandidateSource interface {
	Load(ctx context.Context) ([]screening.Candidate, error)
	Name() string
}
