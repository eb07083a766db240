package qc

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/cellkit/cellkit/internal/exprset"
)

// CellRow is one cell's QC metrics, shaped for CSV and JSON export.
type CellRow struct {
	Cell                string  `csv:"cell" json:"cell"`
	TotalCounts         float64 `csv:"total_counts" json:"total_counts"`
	Log10TotalCounts    float64 `csv:"log10_total_counts" json:"log10_total_counts"`
	TotalFeatures       int     `csv:"total_features" json:"total_features"`
	PctCountsControls   float64 `csv:"pct_counts_from_controls" json:"pct_counts_from_controls"`
	FilterTotalCounts   bool    `csv:"filter_on_total_counts" json:"filter_on_total_counts"`
	FilterTotalFeatures bool    `csv:"filter_on_total_features" json:"filter_on_total_features"`
}

// FeatureRow is one feature's QC metrics, shaped for CSV and JSON export.
type FeatureRow struct {
	Feature        string  `csv:"feature" json:"feature"`
	MeanExprs      float64 `csv:"mean_exprs" json:"mean_exprs"`
	ExprsRank      int     `csv:"exprs_rank" json:"exprs_rank"`
	TotalCounts    float64 `csv:"total_feature_counts" json:"total_feature_counts"`
	PctTotalCounts float64 `csv:"pct_total_counts" json:"pct_total_counts"`
	IsControl      bool    `csv:"is_feature_control" json:"is_feature_control"`
	NCellsExprs    int     `csv:"n_cells_exprs" json:"n_cells_exprs"`
}

// CellRows extracts the per-cell QC metrics from a container Calculate has
// already processed.
func CellRows(set *exprset.ExprSet) ([]CellRow, error) {
	cd := set.CellData()
	depth, ok := cd.Float(ColTotalCounts)
	if !ok {
		return nil, missingColumn(ColTotalCounts)
	}
	log10Depth, ok := cd.Float(ColLog10TotalCounts)
	if !ok {
		return nil, missingColumn(ColLog10TotalCounts)
	}
	coverage, ok := cd.Int(ColTotalFeatures)
	if !ok {
		return nil, missingColumn(ColTotalFeatures)
	}
	pctControls, ok := cd.Float(ColPctCountsControls)
	if !ok {
		return nil, missingColumn(ColPctCountsControls)
	}
	flagDepth, ok := cd.Bool(ColFilterTotalCounts)
	if !ok {
		return nil, missingColumn(ColFilterTotalCounts)
	}
	flagCoverage, ok := cd.Bool(ColFilterTotalFeatures)
	if !ok {
		return nil, missingColumn(ColFilterTotalFeatures)
	}

	rows := make([]CellRow, set.NumCells())
	for j, name := range set.CellNames() {
		rows[j] = CellRow{
			Cell:                name,
			TotalCounts:         depth[j],
			Log10TotalCounts:    log10Depth[j],
			TotalFeatures:       coverage[j],
			PctCountsControls:   pctControls[j],
			FilterTotalCounts:   flagDepth[j],
			FilterTotalFeatures: flagCoverage[j],
		}
	}
	return rows, nil
}

// FeatureRows extracts the per-feature QC metrics.
func FeatureRows(set *exprset.ExprSet) ([]FeatureRow, error) {
	fd := set.FeatureData()
	mean, ok := fd.Float(ColMeanExprs)
	if !ok {
		return nil, missingColumn(ColMeanExprs)
	}
	rank, ok := fd.Int(ColExprsRank)
	if !ok {
		return nil, missingColumn(ColExprsRank)
	}
	total, ok := fd.Float(ColTotalFeatureCounts)
	if !ok {
		return nil, missingColumn(ColTotalFeatureCounts)
	}
	pct, ok := fd.Float(ColPctTotalCounts)
	if !ok {
		return nil, missingColumn(ColPctTotalCounts)
	}
	isControl, ok := fd.Bool(ColIsControl)
	if !ok {
		return nil, missingColumn(ColIsControl)
	}
	nCells, ok := fd.Int(ColNCellsExprs)
	if !ok {
		return nil, missingColumn(ColNCellsExprs)
	}

	rows := make([]FeatureRow, set.NumFeatures())
	for i, name := range set.FeatureNames() {
		rows[i] = FeatureRow{
			Feature:        name,
			MeanExprs:      mean[i],
			ExprsRank:      rank[i],
			TotalCounts:    total[i],
			PctTotalCounts: pct[i],
			IsControl:      isControl[i],
			NCellsExprs:    nCells[i],
		}
	}
	return rows, nil
}

func missingColumn(name string) error {
	return fmt.Errorf("qc: container has no %q column; run Calculate first", name)
}

// WriteCellReport writes the per-cell QC report as CSV.
func WriteCellReport(w io.Writer, rows []CellRow) error {
	return gocsv.Marshal(rows, w)
}

// WriteFeatureReport writes the per-feature QC report as CSV.
func WriteFeatureReport(w io.Writer, rows []FeatureRow) error {
	return gocsv.Marshal(rows, w)
}
