// Package norm provides normalization transforms over expression matrices.
package norm

import (
	"math"

	"github.com/cellkit/cellkit/internal/tabular"
)

// CPM returns counts-per-million: each column scaled so its values sum to
// one million. Zero-depth cells stay zero instead of becoming NaN.
func CPM(counts *tabular.Matrix) *tabular.Matrix {
	depth := counts.ColSums()
	return counts.Map(func(i, j int, v float64) float64 {
		if depth[j] == 0 {
			return 0
		}
		return v / depth[j] * 1e6
	})
}

// LogCPM returns log2(CPM + offset), the default analytic matrix derived
// from raw counts. offset guards against log2(0).
func LogCPM(counts *tabular.Matrix, offset float64) *tabular.Matrix {
	cpm := CPM(counts)
	return cpm.Map(func(i, j int, v float64) float64 {
		return math.Log2(v + offset)
	})
}

// TotalCount scales each column to the target library size. Zero-depth
// cells stay zero.
func TotalCount(counts *tabular.Matrix, scale float64) *tabular.Matrix {
	depth := counts.ColSums()
	return counts.Map(func(i, j int, v float64) float64 {
		if depth[j] == 0 {
			return 0
		}
		return v / depth[j] * scale
	})
}
