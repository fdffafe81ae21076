package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ligandscreen/adapters/memory"
	"ligandscreen/adapters/report"
	"ligandscreen/app"
	"ligandscreen/domain/screening"
	"ligandscreen/internal"
	"ligandscreen/ports"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var scores = map[string]float64{"CCO": 7.5, "c1ccccc1O": 8.25, "CCN": 5.0}

func newTestServer(t *testing.T, reporters ...ports.ResultReporter) (*Server, *SSEHub) {
	t.Helper()
	hub := NewSSEHub()
	t.Cleanup(hub.Close)
	broadcaster := NewSSEEventBroadcaster(hub)

	oracle := ports.AffinityOracleFunc(func(ctx context.Context, c screening.Candidate, _ screening.TargetContext) (float64, error) {
		return scores[c.SMILES], nil
	})
	engine := app.NewScreeningEngine(oracle, app.EngineConfig{
		Progress: broadcaster,
		Logger:   internal.NewLogger(internal.LogLevelError),
	})
	svc := app.NewScreeningService(engine, nil, nil, memory.NewRunRepository(), app.ServiceConfig{
		TopN: 10, MinAffinity: 6, Concurrency: 2, Timeout: 5 * time.Second,
	}, append([]ports.ResultReporter{broadcaster}, reporters...)...)

	return NewServer(svc, hub, gin.TestMode), hub
}

const testRunID = "0190a5f2-7c3e-7b1a-9d2e-4f6a8b0c1d2e"

const screenBody = `{
	"runId": "` + testRunID + `",
	"target": {"fullSequence": "MKTAYIAKQRQ", "pocketSequence": "YIAK"},
	"candidates": [{"smiles": "CCO", "qed": 0.4}, {"smiles": "c1ccccc1O", "qed": 0.6}, {"smiles": "CCN", "qed": 0.3}],
	"topN": 5
}`

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestScreenEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/screen", screenBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var run screening.ScreeningRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, testRunID, run.ID.String())
	assert.Equal(t, 3, run.TotalScreened)
	assert.Equal(t, 2, run.PassedThreshold)
	require.Len(t, run.TopCandidates, 2)
	assert.Equal(t, "c1ccccc1O", run.TopCandidates[0].SMILES)
	assert.Equal(t, 1, run.TopCandidates[0].Rank)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Contains(t, raw, "processingDurationMs")
	assert.NotContains(t, raw, "topRationale")
}

func TestScreenEndpoint_ConfigErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := map[string]string{
		"missing target":       `{"candidates": [{"smiles": "C"}]}`,
		"negative concurrency": `{"target": {"fullSequence": "MK"}, "candidates": [{"smiles": "C"}], "concurrency": -2}`,
		"no candidate source":  `{"target": {"fullSequence": "MK"}}`,
		"malformed json":       `{"target":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/screen", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"code"`)
		})
	}
}

func TestRunEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/screen", screenBody).Code)

	w := do(t, s, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs  []screening.ScreeningRun `json:"runs"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/runs/"+testRunID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/runs/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/runs?limit=0", "").Code)

	md := do(t, s, http.MethodGet, "/api/runs/"+testRunID+"/report.md", "")
	require.Equal(t, http.StatusOK, md.Code)
	assert.Contains(t, md.Body.String(), "# Screening run "+testRunID)

	html := do(t, s, http.MethodGet, "/api/runs/"+testRunID+"/report.html", "")
	require.Equal(t, http.StatusOK, html.Code)
	assert.Contains(t, html.Body.String(), "<table>")

	chart := do(t, s, http.MethodGet, "/api/runs/"+testRunID+"/histogram.html", "")
	assert.Equal(t, http.StatusOK, chart.Code)

	xlsx := do(t, s, http.MethodGet, "/api/runs/"+testRunID+"/report.xlsx", "")
	require.Equal(t, http.StatusOK, xlsx.Code)
	assert.Equal(t, "attachment; filename="+testRunID+".xlsx", xlsx.Header().Get("Content-Disposition"))
	f, err := excelize.OpenReader(bytes.NewReader(xlsx.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
}

func TestScreenEndpoint_RejectsPathLikeRunID(t *testing.T) {
	root := t.TempDir()
	reports := filepath.Join(root, "reports")
	s, _ := newTestServer(t, report.NewDirectoryReporter(reports))

	body := strings.Replace(screenBody, testRunID, "../escaped", 1)
	w := do(t, s, http.MethodPost, "/api/screen", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")

	_, err := os.Stat(filepath.Join(root, "escaped.json"))
	assert.True(t, os.IsNotExist(err))

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/screen", screenBody).Code)
	_, err = os.Stat(filepath.Join(reports, testRunID+".json"))
	assert.NoError(t, err)
}

func TestScreenEndpoint_ReusedRunIDConflicts(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/screen", screenBody).Code)

	second := `{
	"runId": "` + testRunID + `",
	"target": {"fullSequence": "MKTAYIAKQRQ"},
	"candidates": [{"smiles": "CCO"}]
}`
	w := do(t, s, http.MethodPost, "/api/screen", second)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")

	got := do(t, s, http.MethodGet, "/api/runs/"+testRunID, "")
	require.Equal(t, http.StatusOK, got.Code)
	var run screening.ScreeningRun
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &run))
	require.NotEmpty(t, run.TopCandidates)
	assert.Equal(t, "c1ccccc1O", run.TopCandidates[0].SMILES)
}

func TestScreenEndpoint_EmptyCandidateList(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/screen", `{"target": {"fullSequence": "MK"}, "candidates": []}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var run screening.ScreeningRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, 0, run.TotalScreened)
	assert.Empty(t, run.TopCandidates)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsRequireSession(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/events", "").Code)
}

func TestEventsStreamProgressUntilCompleted(t *testing.T) {
	s, hub := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?session_id="+testRunID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount(testRunID) == 1 }, 2*time.Second, 10*time.Millisecond)

	post, err := http.Post(srv.URL+"/api/screen", "application/json", strings.NewReader(screenBody))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusOK, post.StatusCode)

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			events = append(events, strings.TrimPrefix(line, "event:"))
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, EventCompleted, events[len(events)-1])
	assert.Contains(t, events, EventProgress)
}
