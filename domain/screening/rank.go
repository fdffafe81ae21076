package screening

import "sort"

// Rank filters scored candidates by the inclusive minAffinity bound, orders the
// survivors by affinity descending with input index as tie-break, keeps the first
// topN and numbers them 1..k. The input slice is not modified.
func Rank(scored []Scored, minAffinity float64, topN int) []ScoredCandidate {
	passed := make([]Scored, 0, len(scored))
	for _, s := range scored {
		if s.Affinity >= minAffinity {
			passed = append(passed, s)
		}
	}

	sort.SliceStable(passed, func(i, j int) bool {
		if passed[i].Affinity != passed[j].Affinity {
			return passed[i].Affinity > passed[j].Affinity
		}
		return passed[i].Index < passed[j].Index
	})

	if topN < 0 {
		topN = 0
	}
	if len(passed) > topN {
		passed = passed[:topN]
	}

	ranked := make([]ScoredCandidate, len(passed))
	for i, s := range passed {
		ranked[i] = ScoredCandidate{
			Rank:       i + 1,
			Candidate:  s.Candidate,
			Affinity:   s.Affinity,
			InputIndex: s.Index,
		}
	}
	return ranked
}

// CountPassed returns how many scored candidates meet minAffinity.
func CountPassed(scored []Scored, minAffinity float64) int {
	n := 0
	for _, s := range scored {
		if s.Affinity >= minAffinity {
			n++
		}
	}
	return n
}

// Collect turns result slots into Scored entries, skipping failed and unattempted slots.
func Collect(candidates []Candidate, outcomes []Outcome) []Scored {
	scored := make([]Scored, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() || o.Index < 0 || o.Index >= len(candidates) {
			continue
		}
		scored = append(scored, Scored{Index: o.Index, Candidate: candidates[o.Index], Affinity: o.Affinity})
	}
	return scored
}
