package services

import (
	"math"

	"campusdesk_go/utils"
)

// MarkWeights are the relative weights of the three assessment components. Nil means not given.
type MarkWeights struct {
	MST         *float64 `json:"mst"`
	Internal    *float64 `json:"internal"`
	Assignments *float64 `json:"assignments"`
}

// NormalizedWeights scales the given weights to sum to 1. Missing weights count as 0;
// when none is given or they sum to 0 each component weighs 1/3.
func NormalizedWeights(w *MarkWeights) (mst, internal, assignments float64) {
	const third = 1.0 / 3
	if w == nil || (w.MST == nil && w.Internal == nil && w.Assignments == nil) {
		return third, third, third
	}
	val := func(p *float64) float64 {
		if p == nil || *p < 0 {
			return 0
		}
		return *p
	}
	mst, internal, assignments = val(w.MST), val(w.Internal), val(w.Assignments)
	total := mst + internal + assignments
	if total <= 0 {
		return third, third, third
	}
	return mst / total, internal / total, assignments / total
}

// WeightedPercentage combines the three scores with normalized weights, rounded to 2 decimals.
// The returned weights are rounded to 4 decimals for storage.
func WeightedPercentage(mst, internal, assignments float64, w *MarkWeights) (pct float64, weights [3]float64) {
	wm, wi, wa := NormalizedWeights(w)
	pct = utils.Round2(mst*wm + internal*wi + assignments*wa)
	round4 := func(v float64) float64 { return math.Round(v*10000) / 10000 }
	return pct, [3]float64{round4(wm), round4(wi), round4(wa)}
}
