package memory

import (
	"context"
	"testing"
	"time"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(id string, created time.Time) *screening.ScreeningRun {
	return &screening.ScreeningRun{
		ID:            core.RunID(id),
		TotalScreened: 2,
		TopCandidates: []screening.ScoredCandidate{{Rank: 1, Candidate: screening.Candidate{SMILES: "CCO"}, Affinity: 7}},
		Outcomes:      []screening.Outcome{{Index: 0, Attempted: true, Affinity: 7}},
		CreatedAt:     created,
	}
}

func TestRunRepository_SaveGet(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()
	run := newRun("r1", time.Now())

	require.NoError(t, repo.Save(ctx, run))
	run.TopCandidates[0].SMILES = "mutated"

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "CCO", got.TopCandidates[0].SMILES)
	assert.Nil(t, got.Outcomes)
}

func TestRunRepository_SaveExistingIDConflicts(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, newRun("r1", time.Now())))

	second := newRun("r1", time.Now())
	second.TopCandidates[0].SMILES = "c1ccccc1O"
	err := repo.Save(ctx, second)
	assert.True(t, errors.HasCode(err, errors.CodeConflict))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "CCO", got.TopCandidates[0].SMILES)
}

func TestRunRepository_GetMissing(t *testing.T) {
	_, err := NewRunRepository().Get(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRunRepository_SaveRejectsBlankID(t *testing.T) {
	err := NewRunRepository().Save(context.Background(), &screening.ScreeningRun{})
	assert.Error(t, err)
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	repo := NewRunRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, newRun("old", base)))
	require.NoError(t, repo.Save(ctx, newRun("new", base.Add(time.Hour))))
	require.NoError(t, repo.Save(ctx, newRun("mid", base.Add(time.Minute))))

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.RunID("new"), all[0].ID)
	assert.Equal(t, core.RunID("old"), all[2].ID)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, core.RunID("new"), limited[0].ID)
}
