// Package exprset provides the validated expression container: an analytic
// expression matrix plus optional raw counts and metadata tables for both
// axes, with dimensional consistency enforced at every construction point.
package exprset

import (
	"errors"
	"fmt"

	"github.com/cellkit/cellkit/internal/norm"
	"github.com/cellkit/cellkit/internal/tabular"
)

// ErrIDMismatch reports metadata row names that do not match the matrix
// axis labels in the same order.
var ErrIDMismatch = errors.New("exprset: identifier mismatch")

// ErrNoMatrix reports construction with neither counts nor exprs.
var ErrNoMatrix = errors.New("exprset: need a counts or exprs matrix")

// DefaultLogExprsOffset is the prior count added before the log2 transform
// when exprs are derived from counts.
const DefaultLogExprsOffset = 1

// ExprSet holds a features-by-cells expression matrix, optional raw counts
// (nil means unknown, not zero), and the metadata tables for both axes.
// All methods treat the receiver as immutable and return new sets.
type ExprSet struct {
	exprs       *tabular.Matrix
	counts      *tabular.Matrix
	featureData *tabular.Table
	cellData    *tabular.Table

	lowerDetectionLimit float64
}

// Config describes the inputs to New. At least one of Counts and Exprs is
// required; missing metadata tables are synthesized from the matrix labels.
type Config struct {
	Counts *tabular.Matrix
	Exprs  *tabular.Matrix

	FeatureData *tabular.Table
	CellData    *tabular.Table

	// LowerDetectionLimit is the strict threshold above which a value
	// counts as expressed. Zero by default.
	LowerDetectionLimit float64

	// LogExprsOffset is the prior count used when exprs are derived from
	// counts as log2(CPM + offset). Defaults to DefaultLogExprsOffset.
	LogExprsOffset float64
}

// New validates cfg and returns the container. It fails without touching
// any prior state when dimensions disagree, identifiers repeat, or metadata
// row names do not match the matrix labels.
func New(cfg Config) (*ExprSet, error) {
	if cfg.Counts == nil && cfg.Exprs == nil {
		return nil, ErrNoMatrix
	}

	exprs := cfg.Exprs
	if exprs == nil {
		offset := cfg.LogExprsOffset
		if offset == 0 {
			offset = DefaultLogExprsOffset
		}
		exprs = norm.LogCPM(cfg.Counts, offset)
	}

	s := &ExprSet{
		exprs:               exprs,
		counts:              cfg.Counts,
		featureData:         cfg.FeatureData,
		cellData:            cfg.CellData,
		lowerDetectionLimit: cfg.LowerDetectionLimit,
	}

	if s.featureData == nil {
		t, err := tabular.NewTable(exprs.RowNames())
		if err != nil {
			return nil, err
		}
		s.featureData = t
	}
	if s.cellData == nil {
		t, err := tabular.NewTable(exprs.ColNames())
		if err != nil {
			return nil, err
		}
		s.cellData = t
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// validate re-checks every container invariant. It is run by New and by
// every Replace* call.
func (s *ExprSet) validate() error {
	nr, nc := s.exprs.Dims()

	if s.counts != nil {
		cr, cc := s.counts.Dims()
		if cr != nr || cc != nc {
			return fmt.Errorf("%w: counts %dx%d vs exprs %dx%d",
				tabular.ErrDimensionMismatch, cr, cc, nr, nc)
		}
		if err := sameOrder(s.counts.RowNames(), s.exprs.RowNames(), "feature"); err != nil {
			return err
		}
		if err := sameOrder(s.counts.ColNames(), s.exprs.ColNames(), "cell"); err != nil {
			return err
		}
	}

	if s.featureData.NumRows() != nr {
		return fmt.Errorf("%w: %d feature metadata rows for %d matrix rows",
			tabular.ErrDimensionMismatch, s.featureData.NumRows(), nr)
	}
	if s.cellData.NumRows() != nc {
		return fmt.Errorf("%w: %d cell metadata rows for %d matrix columns",
			tabular.ErrDimensionMismatch, s.cellData.NumRows(), nc)
	}

	if err := sameOrder(s.featureData.RowNames(), s.exprs.RowNames(), "feature"); err != nil {
		return err
	}
	return sameOrder(s.cellData.RowNames(), s.exprs.ColNames(), "cell")
}

func sameOrder(got, want []string, axis string) error {
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: %s %d is %q, expected %q",
				ErrIDMismatch, axis, i, got[i], want[i])
		}
	}
	return nil
}

// Exprs returns the analytic expression matrix.
func (s *ExprSet) Exprs() *tabular.Matrix { return s.exprs }

// Counts returns the raw counts matrix, or nil when counts are unknown.
func (s *ExprSet) Counts() *tabular.Matrix { return s.counts }

// HasCounts reports whether raw counts are present.
func (s *ExprSet) HasCounts() bool { return s.counts != nil }

// FeatureData returns the feature metadata table.
func (s *ExprSet) FeatureData() *tabular.Table { return s.featureData }

// CellData returns the cell metadata table.
func (s *ExprSet) CellData() *tabular.Table { return s.cellData }

// LowerDetectionLimit returns the stored detection threshold.
func (s *ExprSet) LowerDetectionLimit() float64 { return s.lowerDetectionLimit }

// NumFeatures returns the number of features (matrix rows).
func (s *ExprSet) NumFeatures() int {
	nr, _ := s.exprs.Dims()
	return nr
}

// NumCells returns the number of cells (matrix columns).
func (s *ExprSet) NumCells() int {
	_, nc := s.exprs.Dims()
	return nc
}

// FeatureNames returns the feature identifiers in matrix order.
func (s *ExprSet) FeatureNames() []string { return s.exprs.RowNames() }

// CellNames returns the cell identifiers in matrix order.
func (s *ExprSet) CellNames() []string { return s.exprs.ColNames() }

// IsExprs classifies every entry of the selected matrix against the stored
// detection limit, strict greater-than. With useCounts it classifies the
// counts matrix and fails when counts are unknown.
func (s *ExprSet) IsExprs(useCounts bool) (*tabular.BoolMatrix, error) {
	m := s.exprs
	if useCounts {
		if s.counts == nil {
			return nil, fmt.Errorf("exprset: counts requested but unknown")
		}
		m = s.counts
	}
	return m.Detected(s.lowerDetectionLimit), nil
}
