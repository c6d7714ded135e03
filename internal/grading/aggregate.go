// Package grading turns a contest's per-criterion raw scores into the
// normalized 0-20 grade that is released to submitters. Everything here is
// pure: no storage, no clock, no side effects.
package grading

import "math"

// Scale is the upper bound of a normalized grade.
const Scale = 20.0

// Entry is one graded criterion: the raw score, the criterion's maximum,
// and its weight in the final grade. Total, when set, carries an already
// finalized grade (legacy corrections) and short-circuits aggregation.
type Entry struct {
	Score  float64
	Max    float64
	Weight float64
	Total  *float64
}

// Aggregate reduces entries to a single normalized grade in [0, Scale],
// rounded to 2 decimals. Input is assumed validated; out-of-bound scores
// are the caller's problem (see Validate).
//
// With uniform weights the grade is the plain proportional mean
// (sum of scores over sum of maxima). With mixed weights each criterion
// contributes its score/max ratio weighted by its weight. An empty set or
// all-zero maxima yield 0.
func Aggregate(entries []Entry) float64 {
	for _, e := range entries {
		if e.Total != nil {
			return round2(*e.Total)
		}
	}
	if len(entries) == 0 {
		return 0
	}
	if uniformWeights(entries) {
		var sum, max float64
		for _, e := range entries {
			sum += e.Score
			max += e.Max
		}
		if max == 0 {
			return 0
		}
		return round2(sum / max * Scale)
	}
	var acc, weights float64
	for _, e := range entries {
		if e.Max == 0 {
			continue
		}
		w := e.Weight
		if w == 0 {
			w = 1
		}
		acc += e.Score / e.Max * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return round2(acc / weights * Scale)
}

// Validate rejects entries whose score falls outside [0, max], an empty
// entry set, and a set whose maxima sum to zero. On success it also returns
// the aggregated grade so callers do not recompute.
func Validate(entries []Entry) (bool, float64) {
	if len(entries) == 0 {
		return false, 0
	}
	var max float64
	for _, e := range entries {
		if e.Total != nil {
			continue
		}
		if e.Score < 0 || e.Score > e.Max {
			return false, 0
		}
		max += e.Max
	}
	if max == 0 {
		return false, 0
	}
	return true, Aggregate(entries)
}

func uniformWeights(entries []Entry) bool {
	for _, e := range entries {
		if e.Weight != 0 && e.Weight != 1 {
			return false
		}
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
