package postgres

import (
	"testing"
	"time"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRowConversion(t *testing.T) {
	rationale := "Phenol anchors to the hinge."
	run := &screening.ScreeningRun{
		ID:              core.RunID("0190-run"),
		TotalScreened:   3,
		TruncatedFrom:   10,
		Attempted:       3,
		Failed:          1,
		PassedThreshold: 1,
		TopCandidates: []screening.ScoredCandidate{{
			Rank:       1,
			Candidate:  screening.Candidate{SMILES: "c1ccccc1O", QED: 0.6, LogP: screening.Float(1.5)},
			Affinity:   8.25,
			InputIndex: 2,
		}},
		ProcessingDuration: 1500 * time.Millisecond,
		TopRationale:       &rationale,
		Summary:            &screening.AffinitySummary{Count: 2, Mean: 7, Max: 8.25},
		Params:             screening.Params{TopN: 5, MinAffinity: 6, Concurrency: 4},
		Target:             screening.TargetContext{FullSequence: "MKT", PocketSequence: "K"},
		CreatedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Outcomes:           []screening.Outcome{{Index: 0}},
	}

	row, err := toRow(run)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, row.ProcessingMs)
	assert.True(t, row.TopRationale.Valid)
	assert.True(t, row.Summary.Valid)

	back, err := fromRow(row)
	require.NoError(t, err)

	run.Outcomes = nil
	assert.Equal(t, run, back)
}

func TestRunRowConversion_EmptyRun(t *testing.T) {
	run := &screening.ScreeningRun{ID: "empty", Params: screening.Params{TopN: 1, Concurrency: 1}}

	row, err := toRow(run)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, row.TopCandidates.String())
	assert.False(t, row.TopRationale.Valid)
	assert.False(t, row.Summary.Valid)

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Empty(t, back.TopCandidates)
	assert.Nil(t, back.Summary)
	assert.Nil(t, back.TopRationale)
}
