package qc

import (
	"math"

	"github.com/montanaflynn/stats"
)

// NormalMADScale makes the median absolute deviation a consistent
// estimator of the standard deviation under normality.
const NormalMADScale = 1.4826

// IsOutlier flags values whose deviation from the median exceeds
// nmads * scale * MAD. Non-finite values (log10 of a zero depth) are always
// flagged and excluded from the median/MAD estimates.
func IsOutlier(values []float64, nmads, scale float64) ([]bool, error) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}

	flags := make([]bool, len(values))
	if len(finite) == 0 {
		for i := range flags {
			flags[i] = true
		}
		return flags, nil
	}

	median, err := stats.Median(finite)
	if err != nil {
		return nil, err
	}

	dev := make([]float64, len(finite))
	for i, v := range finite {
		dev[i] = math.Abs(v - median)
	}
	mad, err := stats.Median(dev)
	if err != nil {
		return nil, err
	}

	bound := nmads * scale * mad
	for i, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			flags[i] = true
			continue
		}
		flags[i] = math.Abs(v-median) > bound
	}
	return flags, nil
}
