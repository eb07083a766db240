package exprset

import "github.com/cellkit/cellkit/internal/tabular"

// ReplaceExprs returns a new container with the analytic matrix swapped.
// Every invariant is re-validated; on error the receiver is unchanged.
func (s *ExprSet) ReplaceExprs(m *tabular.Matrix) (*ExprSet, error) {
	out := s.shallow()
	out.exprs = m
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceCounts returns a new container with the counts matrix swapped.
// Passing nil marks counts as unknown.
func (s *ExprSet) ReplaceCounts(m *tabular.Matrix) (*ExprSet, error) {
	out := s.shallow()
	out.counts = m
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceFeatureData returns a new container with the feature metadata
// table swapped.
func (s *ExprSet) ReplaceFeatureData(t *tabular.Table) (*ExprSet, error) {
	out := s.shallow()
	out.featureData = t
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceCellData returns a new container with the cell metadata table
// swapped.
func (s *ExprSet) ReplaceCellData(t *tabular.Table) (*ExprSet, error) {
	out := s.shallow()
	out.cellData = t
	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// WithLowerDetectionLimit returns a new container holding the same data
// with a different detection threshold.
func (s *ExprSet) WithLowerDetectionLimit(limit float64) *ExprSet {
	out := s.shallow()
	out.lowerDetectionLimit = limit
	return out
}

func (s *ExprSet) shallow() *ExprSet {
	cp := *s
	return &cp
}
