package screening

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"ligandscreen/domain/core"
	"ligandscreen/internal/errors"
)

// Candidate is one ligand read from a candidate source. Immutable once read.
type Candidate struct {
	SMILES          string   `json:"smiles"`
	QED             float64  `json:"qed"`
	MolecularWeight *float64 `json:"mw,omitempty"`
	LogP            *float64 `json:"logP,omitempty"`
}

// TargetContext describes the protein passed to every oracle call.
type TargetContext struct {
	FullSequence   string `json:"fullSequence"`
	PocketSequence string `json:"pocketSequence,omitempty"`
}

// Validate rejects a target without a full sequence.
func (t TargetContext) Validate() error {
	if strings.TrimSpace(t.FullSequence) == "" {
		return errors.ConfigInvalid("target full sequence is required")
	}
	return nil
}

// Params are the per-run knobs of the engine.
type Params struct {
	TopN        int     `json:"topN"`
	MinAffinity float64 `json:"minAffinity"`
	Concurrency int     `json:"concurrency"`
	// RequireCandidates turns an empty candidate sequence into a ConfigError.
	RequireCandidates bool `json:"-"`
}

// Validate checks the invariants the engine relies on. Range clamping of TopN and
// MinAffinity is the caller's job.
func (p Params) Validate() error {
	if p.Concurrency < 1 {
		return errors.ConfigInvalidf("concurrency must be >= 1, got %d", p.Concurrency)
	}
	if p.TopN < 1 {
		return errors.ConfigInvalidf("topN must be >= 1, got %d", p.TopN)
	}
	if math.IsNaN(p.MinAffinity) || math.IsInf(p.MinAffinity, 0) {
		return errors.ConfigInvalid("minAffinity must be a finite number")
	}
	return nil
}

// Scored is a successful oracle result tagged with the candidate's input position.
type Scored struct {
	Index     int
	Candidate Candidate
	Affinity  float64
}

// ScoredCandidate is a ranked entry of a run's result list.
type ScoredCandidate struct {
	Rank int `json:"rank"`
	Candidate
	Affinity   float64 `json:"affinity"`
	InputIndex int     `json:"inputIndex"`
}

// Outcome is the per-candidate result slot written by exactly one worker.
type Outcome struct {
	Index     int
	Attempted bool
	Affinity  float64
	Err       error
}

// OK reports whether the oracle produced a usable score.
func (o Outcome) OK() bool { return o.Attempted && o.Err == nil }

// HistogramBin counts successful affinities in [Lower, Upper).
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// AffinitySummary describes the distribution of every successful score in a run,
// before thresholding.
type AffinitySummary struct {
	Count          int            `json:"count"`
	Mean           float64        `json:"mean"`
	Median         float64        `json:"median"`
	StdDev         float64        `json:"stdDev"`
	Min            float64        `json:"min"`
	Max            float64        `json:"max"`
	P10            float64        `json:"p10"`
	P90            float64        `json:"p90"`
	QEDCorrelation *float64       `json:"qedCorrelation,omitempty"`
	Histogram      []HistogramBin `json:"histogram,omitempty"`
}

// ScreeningRun is the immutable aggregate handed to reporters.
type ScreeningRun struct {
	ID                 core.RunID        `json:"id"`
	TotalScreened      int               `json:"totalScreened"`
	// TruncatedFrom is the candidate pool size when a cap cut it down to TotalScreened.
	TruncatedFrom      int               `json:"truncatedFrom,omitempty"`
	Attempted          int               `json:"attempted"`
	Failed             int               `json:"failed"`
	PassedThreshold    int               `json:"passedThreshold"`
	TopCandidates      []ScoredCandidate `json:"topCandidates"`
	ProcessingDuration time.Duration     `json:"-"`
	TopRationale       *string           `json:"topRationale,omitempty"`
	Summary            *AffinitySummary  `json:"summary,omitempty"`
	Params             Params            `json:"params"`
	Target             TargetContext     `json:"target"`
	Cancelled          bool              `json:"cancelled"`
	CreatedAt          time.Time         `json:"createdAt"`

	// Outcomes holds one slot per input candidate, in input order. Not serialized.
	Outcomes []Outcome `json:"-"`
}

type runAlias ScreeningRun

type runJSON struct {
	*runAlias
	ProcessingDurationMs float64 `json:"processingDurationMs"`
}

// MarshalJSON adds processingDurationMs to the wire form.
func (r ScreeningRun) MarshalJSON() ([]byte, error) {
	alias := runAlias(r)
	if alias.TopCandidates == nil {
		alias.TopCandidates = []ScoredCandidate{}
	}
	return json.Marshal(runJSON{
		runAlias:             &alias,
		ProcessingDurationMs: float64(r.ProcessingDuration.Microseconds()) / 1000,
	})
}

// UnmarshalJSON restores ProcessingDuration from processingDurationMs.
func (r *ScreeningRun) UnmarshalJSON(data []byte) error {
	aux := runJSON{runAlias: (*runAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ProcessingDuration = time.Duration(aux.ProcessingDurationMs * float64(time.Millisecond))
	return nil
}

// Best returns the rank-1 candidate, if any passed the threshold.
func (r *ScreeningRun) Best() (ScoredCandidate, bool) {
	if r == nil || len(r.TopCandidates) == 0 {
		return ScoredCandidate{}, false
	}
	return r.TopCandidates[0], true
}

// Float returns a pointer to v, for optional descriptors.
func Float(v float64) *float64 { return &v }
