package dist

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/cellkit/cellkit/internal/exprset"
)

// ErrStaleDistance reports a distance matrix whose axis identifiers no
// longer match the container, typically after subsetting or reordering.
// Stale matrices are surfaced as errors rather than recomputed silently.
var ErrStaleDistance = errors.New("dist: distance matrix is stale")

// ErrNotComputed reports a lookup for a distance matrix that was never set.
var ErrNotComputed = errors.New("dist: distance matrix not computed")

// Matrix is a symmetric all-pairs distance matrix together with the axis
// labels it was computed over.
type Matrix struct {
	labels []string
	d      *mat.SymDense
}

// Dim returns the number of observations.
func (m *Matrix) Dim() int { return len(m.labels) }

// At returns the distance between observations i and j.
func (m *Matrix) At(i, j int) float64 { return m.d.At(i, j) }

// Labels returns a copy of the axis identifiers in computation order.
func (m *Matrix) Labels() []string {
	out := make([]string, len(m.labels))
	copy(out, m.labels)
	return out
}

// CellDistances computes the pairwise distance matrix over cells (columns
// of the analytic matrix).
func CellDistances(set *exprset.ExprSet, fn Metric) (*Matrix, error) {
	nc := set.NumCells()
	vectors := make([][]float64, nc)
	for j := 0; j < nc; j++ {
		vectors[j] = set.Exprs().Col(j, nil)
	}
	return pairwise(vectors, set.CellNames(), fn)
}

// FeatureDistances computes the pairwise distance matrix over features
// (rows of the analytic matrix).
func FeatureDistances(set *exprset.ExprSet, fn Metric) (*Matrix, error) {
	nr := set.NumFeatures()
	vectors := make([][]float64, nr)
	for i := 0; i < nr; i++ {
		vectors[i] = set.Exprs().Row(i, nil)
	}
	return pairwise(vectors, set.FeatureNames(), fn)
}

func pairwise(vectors [][]float64, labels []string, fn Metric) (*Matrix, error) {
	if fn == nil {
		return nil, errors.New("dist: nil metric")
	}
	n := len(vectors)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := fn(vectors[i], vectors[j])
			if v < 0 {
				return nil, fmt.Errorf("dist: metric returned %v for pair (%s, %s); distances must be non-negative",
					v, labels[i], labels[j])
			}
			d.SetSym(i, j, v)
		}
	}
	return &Matrix{labels: labels, d: d}, nil
}

// Store keeps named distance matrices per axis in LRU caches. Retrieval
// re-validates the owning container's identifiers, so subsetting a
// container invalidates its stored distances.
type Store struct {
	cells    *lru.Cache[string, *Matrix]
	features *lru.Cache[string, *Matrix]
}

// NewStore creates a store holding up to size matrices per axis.
func NewStore(size int) (*Store, error) {
	cells, err := lru.New[string, *Matrix](size)
	if err != nil {
		return nil, fmt.Errorf("dist: creating cell cache: %w", err)
	}
	features, err := lru.New[string, *Matrix](size)
	if err != nil {
		return nil, fmt.Errorf("dist: creating feature cache: %w", err)
	}
	return &Store{cells: cells, features: features}, nil
}

// SetCellDistances computes and stores a cell distance matrix under name.
func (s *Store) SetCellDistances(set *exprset.ExprSet, name string, fn Metric) (*Matrix, error) {
	m, err := CellDistances(set, fn)
	if err != nil {
		return nil, err
	}
	s.cells.Add(name, m)
	return m, nil
}

// SetFeatureDistances computes and stores a feature distance matrix under
// name.
func (s *Store) SetFeatureDistances(set *exprset.ExprSet, name string, fn Metric) (*Matrix, error) {
	m, err := FeatureDistances(set, fn)
	if err != nil {
		return nil, err
	}
	s.features.Add(name, m)
	return m, nil
}

// CellDistances returns the named cell distance matrix, verifying that the
// container's cells still match the matrix labels.
func (s *Store) CellDistances(set *exprset.ExprSet, name string) (*Matrix, error) {
	m, ok := s.cells.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: cells %q", ErrNotComputed, name)
	}
	if err := checkLabels(m.labels, set.CellNames()); err != nil {
		return nil, fmt.Errorf("%w: cells %q: %v", ErrStaleDistance, name, err)
	}
	return m, nil
}

// FeatureDistances returns the named feature distance matrix, verifying
// that the container's features still match the matrix labels.
func (s *Store) FeatureDistances(set *exprset.ExprSet, name string) (*Matrix, error) {
	m, ok := s.features.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: features %q", ErrNotComputed, name)
	}
	if err := checkLabels(m.labels, set.FeatureNames()); err != nil {
		return nil, fmt.Errorf("%w: features %q: %v", ErrStaleDistance, name, err)
	}
	return m, nil
}

func checkLabels(stored, current []string) error {
	if len(stored) != len(current) {
		return fmt.Errorf("stored %d labels, container has %d", len(stored), len(current))
	}
	for i := range stored {
		if stored[i] != current[i] {
			return fmt.Errorf("label %d is %q, container has %q", i, stored[i], current[i])
		}
	}
	return nil
}
