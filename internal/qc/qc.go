// Package qc computes per-cell and per-feature quality-control metrics and
// appends them to the container's metadata tables.
package qc

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/tabular"
)

// ErrMissingCounts reports depth-dependent metrics requested on a container
// without a counts matrix when the exprs fallback is disabled.
var ErrMissingCounts = errors.New("qc: counts matrix required but unknown")

// Per-cell metric column names.
const (
	ColTotalCounts          = "total_counts"
	ColLog10TotalCounts     = "log10_total_counts"
	ColTotalFeatures        = "total_features"
	ColFilterTotalCounts    = "filter_on_total_counts"
	ColFilterTotalFeatures  = "filter_on_total_features"
	ColCountsFromControls   = "counts_from_controls"
	ColCountsFromBiological = "counts_from_biological"
	ColLog10CountsControls  = "log10_counts_from_controls"
	ColLog10CountsBio       = "log10_counts_from_biological"
	ColPctCountsControls    = "pct_counts_from_controls"
)

// Per-feature metric column names.
const (
	ColMeanExprs          = "mean_exprs"
	ColExprsRank          = "exprs_rank"
	ColTotalFeatureCounts = "total_feature_counts"
	ColLog10FeatureCounts = "log10_total_feature_counts"
	ColPctTotalCounts     = "pct_total_counts"
	ColIsControl          = "is_feature_control"
	ColNCellsExprs        = "n_cells_exprs"
)

// DefaultNMADs is the default outlier multiplier on the median absolute
// deviation.
const DefaultNMADs = 5

// Options configures Calculate.
type Options struct {
	// ControlFeatures names spike-in or other control features. Unknown
	// names are an error.
	ControlFeatures []string

	// ControlIndices designates control features by row index, merged
	// with ControlFeatures.
	ControlIndices []int

	// NMADs is the outlier multiplier. Defaults to DefaultNMADs.
	NMADs float64

	// MADScale rescales the MAD for outlier flagging. Defaults to the
	// normal-consistency factor 1.4826.
	MADScale float64

	// RequireCounts makes depth metrics fail with ErrMissingCounts
	// instead of falling back to the exprs matrix.
	RequireCounts bool
}

// Summary records what Calculate did.
type Summary struct {
	// DepthSource is "counts" or "exprs", naming the matrix used for
	// depth-dependent metrics.
	DepthSource string

	ControlFeatures int
	CellsFlagged    int
}

// DetectionMatrix classifies every entry of m against limit, strict
// greater-than. It is pure: the caller's threshold overrides whatever the
// owning container stores, without mutating it.
func DetectionMatrix(m *tabular.Matrix, limit float64) *tabular.BoolMatrix {
	return m.Detected(limit)
}

// Calculate derives QC metrics from the container's matrices and returns a
// new container with the metric columns appended to copies of both metadata
// tables. The input is never modified, and on error no columns are written.
// Repeated runs with identical inputs produce identical columns.
func Calculate(set *exprset.ExprSet, opts Options) (*exprset.ExprSet, Summary, error) {
	if opts.NMADs == 0 {
		opts.NMADs = DefaultNMADs
	}
	if opts.MADScale == 0 {
		opts.MADScale = NormalMADScale
	}

	depthMatrix := set.Counts()
	summary := Summary{DepthSource: "counts"}
	if depthMatrix == nil {
		if opts.RequireCounts {
			return nil, Summary{}, ErrMissingCounts
		}
		depthMatrix = set.Exprs()
		summary.DepthSource = "exprs"
	}

	controls, err := resolveControls(set, opts)
	if err != nil {
		return nil, Summary{}, err
	}
	summary.ControlFeatures = len(controls)

	nFeatures := set.NumFeatures()
	nCells := set.NumCells()

	// Per-cell depth and coverage.
	depth := depthMatrix.ColSums()
	log10Depth := make([]float64, nCells)
	for j, d := range depth {
		log10Depth[j] = math.Log10(d)
	}

	detected := set.Exprs().Detected(set.LowerDetectionLimit())
	coverage := detected.ColCounts()
	coverageF := make([]float64, nCells)
	for j, c := range coverage {
		coverageF[j] = float64(c)
	}

	flagDepth, err := IsOutlier(log10Depth, opts.NMADs, opts.MADScale)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("qc: flagging depth outliers: %w", err)
	}
	flagCoverage, err := IsOutlier(coverageF, opts.NMADs, opts.MADScale)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("qc: flagging coverage outliers: %w", err)
	}
	for j := range flagDepth {
		if flagDepth[j] || flagCoverage[j] {
			summary.CellsFlagged++
		}
	}

	// Control vs biological reads per cell. With no controls designated
	// the control reads default to zero for every cell.
	controlReads := make([]float64, nCells)
	buf := make([]float64, 0, nFeatures)
	if len(controls) > 0 {
		for j := 0; j < nCells; j++ {
			buf = depthMatrix.Col(j, buf)
			var sum float64
			for _, i := range controls {
				sum += buf[i]
			}
			controlReads[j] = sum
		}
	}

	bioReads := make([]float64, nCells)
	pctControl := make([]float64, nCells)
	log10Control := make([]float64, nCells)
	log10Bio := make([]float64, nCells)
	for j := 0; j < nCells; j++ {
		bioReads[j] = depth[j] - controlReads[j]
		if depth[j] > 0 {
			pctControl[j] = controlReads[j] / depth[j] * 100
		}
		// log10(x+1) keeps all-control and all-zero cells finite.
		log10Control[j] = math.Log10(controlReads[j] + 1)
		log10Bio[j] = math.Log10(bioReads[j] + 1)
	}

	// Per-feature metrics.
	meanExprs := make([]float64, nFeatures)
	for i := 0; i < nFeatures; i++ {
		buf = set.Exprs().Row(i, buf)
		meanExprs[i] = stat.Mean(buf, nil)
	}
	rank := RankFirst(meanExprs)

	featureCounts := depthMatrix.RowSums()
	grandTotal := 0.0
	for _, v := range featureCounts {
		grandTotal += v
	}
	log10FeatureCounts := make([]float64, nFeatures)
	pctTotal := make([]float64, nFeatures)
	for i, v := range featureCounts {
		log10FeatureCounts[i] = math.Log10(v + 1)
		if grandTotal > 0 {
			pctTotal[i] = v / grandTotal * 100
		}
	}

	isControl := make([]bool, nFeatures)
	for _, i := range controls {
		isControl[i] = true
	}
	nCellsExprs := detected.RowCounts()

	// Append everything to copies of the metadata tables. SetColumn is
	// the explicit-replacement path, which keeps reruns idempotent.
	cellData := set.CellData().Clone()
	cellCols := []struct {
		name string
		col  tabular.Column
	}{
		{ColTotalCounts, tabular.FloatColumn(depth)},
		{ColLog10TotalCounts, tabular.FloatColumn(log10Depth)},
		{ColTotalFeatures, tabular.IntColumn(coverage)},
		{ColFilterTotalCounts, tabular.BoolColumn(flagDepth)},
		{ColFilterTotalFeatures, tabular.BoolColumn(flagCoverage)},
		{ColCountsFromControls, tabular.FloatColumn(controlReads)},
		{ColCountsFromBiological, tabular.FloatColumn(bioReads)},
		{ColLog10CountsControls, tabular.FloatColumn(log10Control)},
		{ColLog10CountsBio, tabular.FloatColumn(log10Bio)},
		{ColPctCountsControls, tabular.FloatColumn(pctControl)},
	}
	for _, c := range cellCols {
		if err := cellData.SetColumn(c.name, c.col); err != nil {
			return nil, Summary{}, fmt.Errorf("qc: %w", err)
		}
	}

	featureData := set.FeatureData().Clone()
	featureCols := []struct {
		name string
		col  tabular.Column
	}{
		{ColMeanExprs, tabular.FloatColumn(meanExprs)},
		{ColExprsRank, tabular.IntColumn(rank)},
		{ColTotalFeatureCounts, tabular.FloatColumn(featureCounts)},
		{ColLog10FeatureCounts, tabular.FloatColumn(log10FeatureCounts)},
		{ColPctTotalCounts, tabular.FloatColumn(pctTotal)},
		{ColIsControl, tabular.BoolColumn(isControl)},
		{ColNCellsExprs, tabular.IntColumn(nCellsExprs)},
	}
	for _, c := range featureCols {
		if err := featureData.SetColumn(c.name, c.col); err != nil {
			return nil, Summary{}, fmt.Errorf("qc: %w", err)
		}
	}

	out, err := set.ReplaceCellData(cellData)
	if err != nil {
		return nil, Summary{}, err
	}
	out, err = out.ReplaceFeatureData(featureData)
	if err != nil {
		return nil, Summary{}, err
	}
	return out, summary, nil
}

func resolveControls(set *exprset.ExprSet, opts Options) ([]int, error) {
	seen := make(map[int]bool)
	var controls []int

	for _, name := range opts.ControlFeatures {
		i, ok := set.Exprs().RowIndex(name)
		if !ok {
			return nil, fmt.Errorf("qc: unknown control feature %q", name)
		}
		if !seen[i] {
			seen[i] = true
			controls = append(controls, i)
		}
	}
	n := set.NumFeatures()
	for _, i := range opts.ControlIndices {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("qc: control index %d out of range [0,%d)", i, n)
		}
		if !seen[i] {
			seen[i] = true
			controls = append(controls, i)
		}
	}

	sort.Ints(controls)
	return controls, nil
}

// RankFirst assigns ranks 1..n by ascending value, breaking ties by first
// occurrence.
func RankFirst(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	rank := make([]int, len(values))
	for k, i := range idx {
		rank[i] = k + 1
	}
	return rank
}
