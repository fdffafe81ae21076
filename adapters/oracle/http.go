package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"ligandscreen/domain/screening"
	"ligandscreen/internal/errors"

	"golang.org/x/sync/semaphore"
)

// Config configures the HTTP affinity predictor client
type Config struct {
	BaseURL string
	// Path is appended to BaseURL; defaults to /predict.
	Path    string
	APIKey  string
	Timeout time.Duration
	// MinValid and MaxValid bound acceptable affinities (inclusive).
	MinValid float64
	MaxValid float64
	// MaxInFlight caps concurrent requests across every engine sharing this client.
	// Zero means no cap beyond the engine's own worker count.
	MaxInFlight int
}

// HTTPOracle calls a hosted affinity model over HTTP. Safe for concurrent use; the
// only shared state is the http.Client and the optional in-flight semaphore.
type HTTPOracle struct {
	url      string
	apiKey   string
	minValid float64
	maxValid float64
	client   *http.Client
	sem      *semaphore.Weighted
}

type predictRequest struct {
	SMILES      string `json:"smiles"`
	FastaFull   string `json:"fasta_full"`
	FastaPocket string `json:"fasta_pocket"`
}

// NewHTTPOracle creates an oracle client from config
func NewHTTPOracle(cfg Config) (*HTTPOracle, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.ConfigInvalid("oracle base URL is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.ConfigInvalid("oracle call timeout must be positive")
	}
	if cfg.MaxValid <= cfg.MinValid {
		return nil, errors.ConfigInvalidf("oracle valid range [%v, %v] is empty", cfg.MinValid, cfg.MaxValid)
	}
	path := cfg.Path
	if path == "" {
		path = "/predict"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	o := &HTTPOracle{
		url:      base + path,
		apiKey:   cfg.APIKey,
		minValid: cfg.MinValid,
		maxValid: cfg.MaxValid,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.MaxInFlight > 0 {
		o.sem = semaphore.NewWeighted(int64(cfg.MaxInFlight))
	}
	return o, nil
}

// Score posts one candidate and decodes a single affinity value
func (o *HTTPOracle) Score(ctx context.Context, c screening.Candidate, target screening.TargetContext) (float64, error) {
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return 0, screening.NewOracleError(screening.OracleCancelled, c.SMILES, err)
		}
		defer o.sem.Release(1)
	}

	raw, err := json.Marshal(predictRequest{
		SMILES:      c.SMILES,
		FastaFull:   target.FullSequence,
		FastaPocket: target.PocketSequence,
	})
	if err != nil {
		return 0, screening.NewOracleError(screening.OracleFailed, c.SMILES, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(raw))
	if err != nil {
		return 0, screening.NewOracleError(screening.OracleFailed, c.SMILES, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		kind := screening.OracleTransport
		if isTimeout(err) {
			kind = screening.OracleTimeout
		}
		return 0, screening.NewOracleError(kind, c.SMILES, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, screening.NewOracleError(screening.OracleTransport, c.SMILES, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		oe := screening.NewOracleError(screening.OracleRemote, c.SMILES, fmt.Errorf("%s", truncate(string(body), 200)))
		oe.StatusCode = resp.StatusCode
		return 0, oe
	}

	affinity, err := DecodeAffinity(body)
	if err != nil {
		return 0, screening.InvalidResponse(c.SMILES, "%v", err)
	}
	if affinity < o.minValid || affinity > o.maxValid {
		return 0, screening.InvalidResponse(c.SMILES, "affinity %v outside [%v, %v]", affinity, o.minValid, o.maxValid)
	}
	return affinity, nil
}

// affinityKeys are the object fields accepted as the score, in lookup order.
var affinityKeys = []string{"affinity", "prediction", "pKd", "pkd", "score"}

// DecodeAffinity extracts one finite number from a predictor response. Accepted
// shapes: a bare number, a one-element array, an object with one of affinityKeys,
// or an object whose "data" field is one of the former.
func DecodeAffinity(body []byte) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return extractAffinity(v, 0)
}

func extractAffinity(v interface{}, depth int) (float64, error) {
	if depth > 3 {
		return 0, fmt.Errorf("response nested too deeply")
	}
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("non-numeric affinity %q", t.String())
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-finite affinity")
		}
		return f, nil
	case []interface{}:
		if len(t) != 1 {
			return 0, fmt.Errorf("expected exactly one value, got %d", len(t))
		}
		return extractAffinity(t[0], depth+1)
	case map[string]interface{}:
		for _, key := range affinityKeys {
			if val, ok := t[key]; ok {
				return extractAffinity(val, depth+1)
			}
		}
		if data, ok := t["data"]; ok {
			return extractAffinity(data, depth+1)
		}
		if msg, ok := t["error"]; ok {
			return 0, fmt.Errorf("remote error: %v", msg)
		}
		return 0, fmt.Errorf("response carries no affinity field")
	case nil:
		return 0, fmt.Errorf("null affinity")
	default:
		return 0, fmt.Errorf("unexpected affinity type %T", v)
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return stderrors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
