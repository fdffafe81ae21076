package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"ligandscreen/adapters/memory"
	"ligandscreen/adapters/source"
	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	apperrors "ligandscreen/internal/errors"
	"ligandscreen/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRationale struct{ mock.Mock }

func (m *mockRationale) Explain(ctx context.Context, best screening.ScoredCandidate, target screening.TargetContext) (string, bool) {
	args := m.Called(ctx, best, target)
	return args.String(0), args.Bool(1)
}

type mockReporter struct{ mock.Mock }

func (m *mockReporter) Report(ctx context.Context, run *screening.ScreeningRun) error {
	return m.Called(ctx, run).Error(0)
}

func defaultServiceConfig() ServiceConfig {
	return ServiceConfig{TopN: 10, MinAffinity: 6.0, Concurrency: 4, Timeout: 5 * time.Second, RationaleTimeout: time.Second}
}

func newTestService(oracle *stubOracle, src *source.SliceSource, rationale *mockRationale, cfg ServiceConfig, reporters ...*mockReporter) (*ScreeningService, ports.RunRepository) {
	repo := memory.NewRunRepository()
	svc := NewScreeningService(NewScreeningEngine(oracle, EngineConfig{Logger: quietLogger()}), nil, nil, repo, cfg)
	if src != nil {
		svc.source = src
	}
	if rationale != nil {
		svc.rationale = rationale
	}
	for _, r := range reporters {
		svc.reporters = append(svc.reporters, r)
	}
	return svc, repo
}

const fixedRunID core.RunID = "0190a5f2-7c3e-7b1a-9d2e-4f6a8b0c1d2e"

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestService_RunsEndToEnd(t *testing.T) {
	rationale := &mockRationale{}
	rationale.On("Explain", mock.Anything, mock.MatchedBy(func(c screening.ScoredCandidate) bool {
		return c.Rank == 1 && c.SMILES == "A"
	}), testTarget).Return("A fills the pocket.", true).Once()

	reporter := &mockReporter{}
	reporter.On("Report", mock.Anything, mock.AnythingOfType("*screening.ScreeningRun")).Return(errors.New("disk full")).Once()

	svc, repo := newTestService(abcOracle(), nil, rationale, defaultServiceConfig(), reporter)

	run, err := svc.Run(context.Background(), ScreeningRequest{
		Target:     testTarget,
		Candidates: abcCandidates(),
		TopN:       intPtr(2),
	})

	require.NoError(t, err)
	require.Len(t, run.TopCandidates, 2)
	require.NotNil(t, run.TopRationale)
	assert.Equal(t, "A fills the pocket.", *run.TopRationale)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.Count)
	assert.InDelta(t, 25.0/3, run.Summary.Mean, 1e-9)

	stored, err := repo.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.TopCandidates, stored.TopCandidates)

	rationale.AssertExpectations(t)
	reporter.AssertExpectations(t)
}

func TestService_NoRationaleWithoutSurvivors(t *testing.T) {
	rationale := &mockRationale{}
	svc, _ := newTestService(abcOracle(), nil, rationale, defaultServiceConfig())

	run, err := svc.Run(context.Background(), ScreeningRequest{
		Target:      testTarget,
		Candidates:  abcCandidates(),
		MinAffinity: floatPtr(9.5),
	})

	require.NoError(t, err)
	assert.Empty(t, run.TopCandidates)
	assert.Nil(t, run.TopRationale)
	rationale.AssertNotCalled(t, "Explain", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_RationaleFailureLeavesItAbsent(t *testing.T) {
	rationale := &mockRationale{}
	rationale.On("Explain", mock.Anything, mock.Anything, mock.Anything).Return("", false)
	svc, _ := newTestService(abcOracle(), nil, rationale, defaultServiceConfig())

	run, err := svc.Run(context.Background(), ScreeningRequest{Target: testTarget, Candidates: abcCandidates()})

	require.NoError(t, err)
	assert.Len(t, run.TopCandidates, 3)
	assert.Nil(t, run.TopRationale)
}

func TestService_ParamsDefaultsAndClamps(t *testing.T) {
	svc, _ := newTestService(abcOracle(), nil, nil, defaultServiceConfig())

	p, err := svc.Params(ScreeningRequest{})
	require.NoError(t, err)
	assert.Equal(t, screening.Params{TopN: 10, MinAffinity: 6.0, Concurrency: 4}, p)

	p, err = svc.Params(ScreeningRequest{TopN: intPtr(0), MinAffinity: floatPtr(99), Concurrency: 16})
	require.NoError(t, err)
	assert.Equal(t, screening.Params{TopN: 1, MinAffinity: 15, Concurrency: 16}, p)

	_, err = svc.Params(ScreeningRequest{Concurrency: -1})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
}

func TestService_ConfigErrors(t *testing.T) {
	svc, _ := newTestService(abcOracle(), nil, nil, defaultServiceConfig())

	_, err := svc.Run(context.Background(), ScreeningRequest{Candidates: abcCandidates()})
	assert.True(t, screening.IsConfigError(err), "missing target")

	_, err = svc.Run(context.Background(), ScreeningRequest{Target: testTarget})
	assert.True(t, screening.IsConfigError(err), "no candidates and no source")
}

func TestService_LoadsFromSourceAndTruncates(t *testing.T) {
	cfg := defaultServiceConfig()
	cfg.MaxCandidates = 2
	src := &source.SliceSource{Label: "library", Candidates: abcCandidates()}
	oracle := abcOracle()
	svc, _ := newTestService(oracle, src, nil, cfg)

	run, err := svc.Run(context.Background(), ScreeningRequest{Target: testTarget, RunID: fixedRunID})

	require.NoError(t, err)
	assert.Equal(t, fixedRunID, run.ID)
	assert.Equal(t, 2, run.TotalScreened)
	assert.Equal(t, 3, run.TruncatedFrom)
	assert.Equal(t, 0, oracle.callCount("C"))
}

func TestService_NoTruncationLeavesPoolSizeUnset(t *testing.T) {
	svc, _ := newTestService(abcOracle(), nil, nil, defaultServiceConfig())

	run, err := svc.Run(context.Background(), ScreeningRequest{Target: testTarget, Candidates: abcCandidates()})

	require.NoError(t, err)
	assert.Equal(t, 3, run.TotalScreened)
	assert.Zero(t, run.TruncatedFrom)
}

func TestService_ExplicitEmptyCandidatesIsEmptyRun(t *testing.T) {
	src := &source.SliceSource{Label: "library", Candidates: abcCandidates()}
	oracle := abcOracle()
	svc, _ := newTestService(oracle, src, nil, defaultServiceConfig())

	run, err := svc.Run(context.Background(), ScreeningRequest{Target: testTarget, Candidates: []screening.Candidate{}})

	require.NoError(t, err)
	assert.Equal(t, 0, run.TotalScreened)
	assert.Empty(t, run.TopCandidates)
	assert.Equal(t, 0, oracle.callCount("A"))
}

func TestService_RejectsMalformedRunID(t *testing.T) {
	reporter := &mockReporter{}
	oracle := abcOracle()
	svc, repo := newTestService(oracle, nil, nil, defaultServiceConfig(), reporter)

	for _, id := range []core.RunID{"../escaped", "fixed-id", "0190A5F2-7C3E-7B1A-9D2E-4F6A8B0C1D2E"} {
		_, err := svc.Run(context.Background(), ScreeningRequest{RunID: id, Target: testTarget, Candidates: abcCandidates()})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput), string(id))
	}

	runs, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, 0, oracle.callCount("A"))
	reporter.AssertNotCalled(t, "Report", mock.Anything, mock.Anything)
}

func TestService_RejectsReusedRunID(t *testing.T) {
	oracle := abcOracle()
	svc, repo := newTestService(oracle, nil, nil, defaultServiceConfig())
	ctx := context.Background()

	first, err := svc.Run(ctx, ScreeningRequest{RunID: fixedRunID, Target: testTarget, Candidates: abcCandidates()})
	require.NoError(t, err)

	_, err = svc.Run(ctx, ScreeningRequest{
		RunID:      fixedRunID,
		Target:     testTarget,
		Candidates: []screening.Candidate{{SMILES: "B"}},
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, 1, oracle.callCount("B"))

	stored, err := repo.Get(ctx, fixedRunID)
	require.NoError(t, err)
	assert.Equal(t, first.TopCandidates, stored.TopCandidates)
}

func TestService_RejectsRunIDAlreadyInFlight(t *testing.T) {
	oracle := abcOracle()
	oracle.block["A"] = true
	svc, _ := newTestService(oracle, nil, nil, defaultServiceConfig())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, ScreeningRequest{RunID: fixedRunID, Target: testTarget, Candidates: abcCandidates()})
		done <- err
	}()
	require.Eventually(t, func() bool { return oracle.callCount("A") == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := svc.Run(ctx, ScreeningRequest{RunID: fixedRunID, Target: testTarget, Candidates: abcCandidates()})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	close(oracle.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, oracle.callCount("A"))
}

func TestService_ListAndGet(t *testing.T) {
	svc, _ := newTestService(abcOracle(), nil, nil, defaultServiceConfig())
	run, err := svc.Run(context.Background(), ScreeningRequest{Target: testTarget, Candidates: abcCandidates()})
	require.NoError(t, err)

	runs, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	_, err = svc.Get(context.Background(), "unknown")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
