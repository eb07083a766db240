package exprset

import "fmt"

// FeaturePredicate decides whether feature i (with the given name) is kept.
type FeaturePredicate func(i int, name string) bool

// CellPredicate decides whether cell j (with the given name) is kept.
type CellPredicate func(j int, name string) bool

// Subset returns a new container restricted to the features and cells the
// predicates keep. A nil predicate keeps its axis whole. Matrices and
// metadata are filtered in lockstep; the source is never mutated.
func (s *ExprSet) Subset(keepFeature FeaturePredicate, keepCell CellPredicate) (*ExprSet, error) {
	var featureIdx, cellIdx []int

	if keepFeature != nil {
		for i, name := range s.exprs.RowNames() {
			if keepFeature(i, name) {
				featureIdx = append(featureIdx, i)
			}
		}
		if featureIdx == nil {
			featureIdx = []int{}
		}
	}
	if keepCell != nil {
		for j, name := range s.exprs.ColNames() {
			if keepCell(j, name) {
				cellIdx = append(cellIdx, j)
			}
		}
		if cellIdx == nil {
			cellIdx = []int{}
		}
	}

	return s.subsetIndices(featureIdx, cellIdx)
}

// SubsetFeatures returns a new container holding only the named features,
// in the given order.
func (s *ExprSet) SubsetFeatures(names []string) (*ExprSet, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		i, ok := s.exprs.RowIndex(name)
		if !ok {
			return nil, fmt.Errorf("exprset: unknown feature %q", name)
		}
		idx[k] = i
	}
	return s.subsetIndices(idx, nil)
}

// SubsetCells returns a new container holding only the named cells, in the
// given order.
func (s *ExprSet) SubsetCells(names []string) (*ExprSet, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		j, ok := s.exprs.ColIndex(name)
		if !ok {
			return nil, fmt.Errorf("exprset: unknown cell %q", name)
		}
		idx[k] = j
	}
	return s.subsetIndices(nil, idx)
}

// subsetIndices does the shared lockstep filtering. Nil keeps an axis whole.
func (s *ExprSet) subsetIndices(featureIdx, cellIdx []int) (*ExprSet, error) {
	out := &ExprSet{
		exprs:               s.exprs.Subset(featureIdx, cellIdx),
		featureData:         s.featureData,
		cellData:            s.cellData,
		lowerDetectionLimit: s.lowerDetectionLimit,
	}
	if s.counts != nil {
		out.counts = s.counts.Subset(featureIdx, cellIdx)
	}
	if featureIdx != nil {
		out.featureData = s.featureData.Subset(featureIdx)
	} else {
		out.featureData = s.featureData.Clone()
	}
	if cellIdx != nil {
		out.cellData = s.cellData.Subset(cellIdx)
	} else {
		out.cellData = s.cellData.Clone()
	}

	if err := out.validate(); err != nil {
		return nil, err
	}
	return out, nil
}
