// Package dist computes all-pairs distance matrices over cells or features
// and keeps them keyed by the axis identifiers they were computed from.
package dist

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Metric is a pluggable pairwise distance. Implementations must be
// symmetric and non-negative.
type Metric func(a, b []float64) float64

// Euclidean is the L2 distance.
func Euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Manhattan is the L1 distance.
func Manhattan(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// Canberra is the Canberra distance. Terms where both coordinates are zero
// contribute nothing.
func Canberra(a, b []float64) float64 {
	var sum float64
	for i := range a {
		den := math.Abs(a[i]) + math.Abs(b[i])
		if den == 0 {
			continue
		}
		sum += math.Abs(a[i]-b[i]) / den
	}
	return sum
}

// ByName returns a shipped metric by its configuration name.
func ByName(name string) (Metric, bool) {
	switch name {
	case "euclidean":
		return Euclidean, true
	case "manhattan":
		return Manhattan, true
	case "canberra":
		return Canberra, true
	default:
		return nil, false
	}
}
