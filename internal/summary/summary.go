package summary

import (
	"math"

	"ligandscreen/domain/screening"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the histogram resolution used when callers pass zero.
const DefaultBins = 15

// Compute summarises every successfully scored candidate in a run. It returns nil
// when nothing was scored.
func Compute(scored []screening.Scored, bins int) (*screening.AffinitySummary, error) {
	if len(scored) == 0 {
		return nil, nil
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	affinities := make([]float64, len(scored))
	qeds := make([]float64, len(scored))
	for i, s := range scored {
		affinities[i] = s.Affinity
		qeds[i] = s.Candidate.QED
	}

	data := stats.Float64Data(affinities)
	out := &screening.AffinitySummary{Count: len(affinities)}

	var err error
	if out.Mean, err = stats.Mean(data); err != nil {
		return nil, err
	}
	if out.Median, err = stats.Median(data); err != nil {
		return nil, err
	}
	if out.Min, err = stats.Min(data); err != nil {
		return nil, err
	}
	if out.Max, err = stats.Max(data); err != nil {
		return nil, err
	}
	if out.P10, err = stats.PercentileNearestRank(data, 10); err != nil {
		return nil, err
	}
	if out.P90, err = stats.PercentileNearestRank(data, 90); err != nil {
		return nil, err
	}
	if len(affinities) > 1 {
		if out.StdDev, err = stats.StandardDeviationSample(data); err != nil {
			return nil, err
		}
		if r := stat.Correlation(qeds, affinities, nil); !math.IsNaN(r) {
			out.QEDCorrelation = &r
		}
	}

	out.Histogram = Histogram(affinities, out.Min, out.Max, bins)
	return out, nil
}

// Histogram buckets values into n equal-width bins spanning [min, max]. The last
// bin is closed on the right so max is counted.
func Histogram(values []float64, min, max float64, n int) []screening.HistogramBin {
	if len(values) == 0 || n <= 0 {
		return nil
	}
	if max <= min {
		return []screening.HistogramBin{{Lower: min, Upper: max, Count: len(values)}}
	}

	width := (max - min) / float64(n)
	bins := make([]screening.HistogramBin, n)
	for i := range bins {
		bins[i].Lower = min + float64(i)*width
		bins[i].Upper = min + float64(i+1)*width
	}
	bins[n-1].Upper = max

	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		bins[idx].Count++
	}
	return bins
}
