package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func weight(v float64) *float64 { return &v }

func TestNormalizedWeights(t *testing.T) {
	cases := []struct {
		name    string
		weights *MarkWeights
		want    [3]float64
	}{
		{"absent", nil, [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{"empty", &MarkWeights{}, [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{"all zero", &MarkWeights{MST: weight(0), Internal: weight(0), Assignments: weight(0)}, [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{"scaled", &MarkWeights{MST: weight(50), Internal: weight(30), Assignments: weight(20)}, [3]float64{0.5, 0.3, 0.2}},
		{"partial", &MarkWeights{MST: weight(1)}, [3]float64{1, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, i, a := NormalizedWeights(tc.weights)
			assert.InDelta(t, tc.want[0], m, 1e-9)
			assert.InDelta(t, tc.want[1], i, 1e-9)
			assert.InDelta(t, tc.want[2], a, 1e-9)
		})
	}
}

func TestWeightedPercentage(t *testing.T) {
	pct, w := WeightedPercentage(80, 70, 90, nil)
	assert.Equal(t, 80.0, pct)
	assert.Equal(t, [3]float64{0.3333, 0.3333, 0.3333}, w)

	pct, w = WeightedPercentage(80, 60, 100, &MarkWeights{MST: weight(2), Internal: weight(1), Assignments: weight(1)})
	assert.Equal(t, 80.0, pct)
	assert.Equal(t, [3]float64{0.5, 0.25, 0.25}, w)
}
