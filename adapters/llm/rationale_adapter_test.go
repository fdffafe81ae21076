package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"ligandscreen/domain/screening"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	winner = screening.ScoredCandidate{
		Rank:      1,
		Candidate: screening.Candidate{SMILES: "c1ccccc1O", QED: 0.61, MolecularWeight: screening.Float(94.1)},
		Affinity:  8.7,
	}
	target = screening.TargetContext{FullSequence: "MKTAYIAKQRQISFVKSHFSRQ", PocketSequence: "YIAK"}
)

func TestRationaleAdapter_ReturnsTrimmedText(t *testing.T) {
	mock := &MockLLMClient{Response: "  Phenol H-bonds to the hinge.  \n"}
	adapter := NewRationaleAdapter(mock, "gpt-test", 200)

	text, ok := adapter.Explain(context.Background(), winner, target)

	require.True(t, ok)
	assert.Equal(t, "Phenol H-bonds to the hinge.", text)
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "c1ccccc1O")
	assert.Contains(t, mock.Prompts[0], "8.70")
	assert.Contains(t, mock.Prompts[0], "YIAK")
}

func TestRationaleAdapter_FailuresAreAbsent(t *testing.T) {
	tests := map[string]*RationaleAdapter{
		"llm error":      NewRationaleAdapter(&MockLLMClient{Error: errors.New("rate limited")}, "m", 10),
		"empty response": NewRationaleAdapter(&MockLLMClient{Response: "   "}, "m", 10),
		"no client":      NewRationaleAdapter(nil, "m", 10),
		"nil adapter":    nil,
	}

	for name, adapter := range tests {
		t.Run(name, func(t *testing.T) {
			text, ok := adapter.Explain(context.Background(), winner, target)
			assert.False(t, ok)
			assert.Empty(t, text)
		})
	}
}

func TestBuildRationalePrompt_ClipsLongSequences(t *testing.T) {
	long := screening.TargetContext{FullSequence: strings.Repeat("A", 5000)}
	prompt := BuildRationalePrompt(winner, long)
	assert.Less(t, len(prompt), 2500)
	assert.NotContains(t, prompt, "Binding pocket")
}

func TestOpenAIClient_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	out, err := client.ChatCompletion(context.Background(), "m", "hi", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.ChatCompletion(context.Background(), "m", "hi", 10)
	assert.Error(t, err)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.True(t, screening.IsConfigError(err))
}

// TestLiveRationale exercises the real endpoint when credentials are available.
func TestLiveRationale(t *testing.T) {
	if err := godotenv.Load("../../.env"); err != nil {
		_ = godotenv.Load(".env")
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("Skipping live test: OPENAI_API_KEY not set")
	}

	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	client, err := NewOpenAIClient(Config{APIKey: os.Getenv("OPENAI_API_KEY"), BaseURL: os.Getenv("OPENAI_BASE_URL"), Timeout: time.Minute})
	require.NoError(t, err)

	text, ok := NewRationaleAdapter(client, model, 300).Explain(context.Background(), winner, target)
	require.True(t, ok)
	assert.NotEmpty(t, text)
}
