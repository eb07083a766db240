package qc

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/tabular"
)

func testSet(t *testing.T) *exprset.ExprSet {
	t.Helper()
	counts, err := tabular.NewMatrix(
		[]string{"g1", "g2"},
		[]string{"c1", "c2"},
		[]float64{
			5, 0,
			3, 2,
		},
	)
	if err != nil {
		t.Fatalf("NewMatrix failed: %v", err)
	}
	s, err := exprset.New(exprset.Config{Counts: counts})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestCalculateDepthAndCoverage(t *testing.T) {
	out, summary, err := Calculate(testSet(t), Options{})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if summary.DepthSource != "counts" {
		t.Errorf("DepthSource = %q, want counts", summary.DepthSource)
	}

	depth, ok := out.CellData().Float(ColTotalCounts)
	if !ok {
		t.Fatal("total_counts column missing")
	}
	if depth[0] != 8 || depth[1] != 2 {
		t.Errorf("depth = %v, want [8 2]", depth)
	}

	coverage, _ := out.CellData().Int(ColTotalFeatures)
	if coverage[0] != 2 || coverage[1] != 1 {
		t.Errorf("coverage = %v, want [2 1]", coverage)
	}
}

func TestCalculateNoControls(t *testing.T) {
	out, summary, err := Calculate(testSet(t), Options{})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if summary.ControlFeatures != 0 {
		t.Errorf("ControlFeatures = %d, want 0", summary.ControlFeatures)
	}

	cd := out.CellData()
	control, _ := cd.Float(ColCountsFromControls)
	bio, _ := cd.Float(ColCountsFromBiological)
	pct, _ := cd.Float(ColPctCountsControls)
	depth, _ := cd.Float(ColTotalCounts)
	for j := range control {
		if control[j] != 0 {
			t.Errorf("counts_from_controls[%d] = %v, want 0", j, control[j])
		}
		if bio[j] != depth[j] {
			t.Errorf("counts_from_biological[%d] = %v, want depth %v", j, bio[j], depth[j])
		}
		if pct[j] != 0 {
			t.Errorf("pct_counts_from_controls[%d] = %v, want 0", j, pct[j])
		}
	}

	isControl, _ := out.FeatureData().Bool(ColIsControl)
	for i, c := range isControl {
		if c {
			t.Errorf("feature %d marked control with no controls designated", i)
		}
	}
}

func TestCalculateWithControls(t *testing.T) {
	out, summary, err := Calculate(testSet(t), Options{ControlFeatures: []string{"g2"}})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if summary.ControlFeatures != 1 {
		t.Errorf("ControlFeatures = %d, want 1", summary.ControlFeatures)
	}

	cd := out.CellData()
	control, _ := cd.Float(ColCountsFromControls)
	bio, _ := cd.Float(ColCountsFromBiological)
	pct, _ := cd.Float(ColPctCountsControls)

	// g2 contributes [3 2]; depths are [8 2].
	if control[0] != 3 || control[1] != 2 {
		t.Errorf("counts_from_controls = %v, want [3 2]", control)
	}
	if bio[0] != 5 || bio[1] != 0 {
		t.Errorf("counts_from_biological = %v, want [5 0]", bio)
	}
	if math.Abs(pct[0]-37.5) > 1e-9 || math.Abs(pct[1]-100) > 1e-9 {
		t.Errorf("pct_counts_from_controls = %v, want [37.5 100]", pct)
	}

	isControl, _ := out.FeatureData().Bool(ColIsControl)
	if isControl[0] || !isControl[1] {
		t.Errorf("is_feature_control = %v, want [false true]", isControl)
	}

	if _, _, err := Calculate(testSet(t), Options{ControlFeatures: []string{"nope"}}); err == nil {
		t.Error("expected error for unknown control feature")
	}
	if _, _, err := Calculate(testSet(t), Options{ControlIndices: []int{7}}); err == nil {
		t.Error("expected error for out-of-range control index")
	}
}

func TestCalculateFeatureMetrics(t *testing.T) {
	out, _, err := Calculate(testSet(t), Options{})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	fd := out.FeatureData()
	total, _ := fd.Float(ColTotalFeatureCounts)
	if total[0] != 5 || total[1] != 5 {
		t.Errorf("total_feature_counts = %v, want [5 5]", total)
	}

	pct, _ := fd.Float(ColPctTotalCounts)
	if math.Abs(pct[0]-50) > 1e-9 || math.Abs(pct[1]-50) > 1e-9 {
		t.Errorf("pct_total_counts = %v, want [50 50]", pct)
	}

	nCells, _ := fd.Int(ColNCellsExprs)
	if nCells[0] != 1 || nCells[1] != 2 {
		t.Errorf("n_cells_exprs = %v, want [1 2]", nCells)
	}
}

func TestCalculateIdempotent(t *testing.T) {
	once, _, err := Calculate(testSet(t), Options{ControlFeatures: []string{"g2"}})
	if err != nil {
		t.Fatalf("first Calculate failed: %v", err)
	}
	twice, _, err := Calculate(once, Options{ControlFeatures: []string{"g2"}})
	if err != nil {
		t.Fatalf("second Calculate failed: %v", err)
	}

	var a, b bytes.Buffer
	if err := tabular.WriteTable(&a, once.CellData(), ',', "cell"); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}
	if err := tabular.WriteTable(&b, twice.CellData(), ',', "cell"); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}
	if a.String() != b.String() {
		t.Error("cell metrics differ between identical runs")
	}
}

func TestCalculateLeavesInputUnmodified(t *testing.T) {
	in := testSet(t)
	if _, _, err := Calculate(in, Options{}); err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if in.CellData().NumCols() != 0 {
		t.Errorf("input cell metadata gained %d columns", in.CellData().NumCols())
	}
	if in.FeatureData().NumCols() != 0 {
		t.Errorf("input feature metadata gained %d columns", in.FeatureData().NumCols())
	}
}

func TestCalculateRequireCounts(t *testing.T) {
	exprs, _ := tabular.NewMatrix([]string{"g1"}, []string{"c1"}, []float64{1})
	s, err := exprset.New(exprset.Config{Exprs: exprs})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, _, err := Calculate(s, Options{RequireCounts: true}); !errors.Is(err, ErrMissingCounts) {
		t.Errorf("got %v, want ErrMissingCounts", err)
	}

	// Without RequireCounts the exprs matrix serves as the depth proxy.
	_, summary, err := Calculate(s, Options{})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if summary.DepthSource != "exprs" {
		t.Errorf("DepthSource = %q, want exprs", summary.DepthSource)
	}
}

func TestIsOutlier(t *testing.T) {
	// Median 1.0, MAD 0.1: the bound is 5 * 1.4826 * 0.1 ~= 0.74, so a
	// deviation of 1.0 is flagged and 0.3 is not.
	values := []float64{0.8, 0.9, 1.0, 1.0, 1.0, 1.1, 1.2, 2.0, 1.3}
	flags, err := IsOutlier(values, 5, NormalMADScale)
	if err != nil {
		t.Fatalf("IsOutlier failed: %v", err)
	}
	if !flags[7] {
		t.Error("value 2.0 not flagged")
	}
	if flags[8] {
		t.Error("value 1.3 flagged")
	}
	for i := 0; i < 7; i++ {
		if flags[i] {
			t.Errorf("central value %v flagged", values[i])
		}
	}
}

func TestIsOutlierNonFinite(t *testing.T) {
	values := []float64{1, 1, 1, math.Inf(-1)}
	flags, err := IsOutlier(values, 5, NormalMADScale)
	if err != nil {
		t.Fatalf("IsOutlier failed: %v", err)
	}
	if !flags[3] {
		t.Error("-Inf not flagged")
	}
	if flags[0] || flags[1] || flags[2] {
		t.Errorf("finite values flagged: %v", flags)
	}
}

func TestRankFirst(t *testing.T) {
	// Ties broken by first occurrence.
	rank := RankFirst([]float64{2, 1, 2, 0})
	want := []int{3, 2, 4, 1}
	for i := range want {
		if rank[i] != want[i] {
			t.Errorf("rank = %v, want %v", rank, want)
			break
		}
	}
}

func TestReports(t *testing.T) {
	out, _, err := Calculate(testSet(t), Options{})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	cells, err := CellRows(out)
	if err != nil {
		t.Fatalf("CellRows failed: %v", err)
	}
	if len(cells) != 2 || cells[0].TotalCounts != 8 {
		t.Errorf("cell rows = %+v", cells)
	}

	var buf bytes.Buffer
	if err := WriteCellReport(&buf, cells); err != nil {
		t.Fatalf("WriteCellReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "total_counts") {
		t.Errorf("report missing header: %q", buf.String())
	}

	// Reports on a container without metrics fail.
	if _, err := CellRows(testSet(t)); err == nil {
		t.Error("expected error for container without QC columns")
	}
	if _, err := FeatureRows(testSet(t)); err == nil {
		t.Error("expected error for container without QC columns")
	}
}

func TestReportRowsJSONKeys(t *testing.T) {
	out, _, err := Calculate(testSet(t), Options{})
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	cells, err := CellRows(out)
	if err != nil {
		t.Fatalf("CellRows failed: %v", err)
	}

	data, err := json.Marshal(cells[0])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, key := range []string{`"cell"`, `"total_counts"`, `"filter_on_total_counts"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("cell row JSON missing %s: %s", key, data)
		}
	}
}

func TestReportsPartialColumns(t *testing.T) {
	// A container holding the depth column but not its siblings is
	// rejected rather than indexed out of bounds.
	set := testSet(t)
	cd, err := tabular.NewTable([]string{"c1", "c2"})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	if err := cd.AddColumn(ColTotalCounts, tabular.FloatColumn{8, 2}); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	set, err = set.ReplaceCellData(cd)
	if err != nil {
		t.Fatalf("ReplaceCellData failed: %v", err)
	}

	if _, err := CellRows(set); err == nil {
		t.Error("expected error for partial QC columns")
	}

	fd, err := tabular.NewTable([]string{"g1", "g2"})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	if err := fd.AddColumn(ColMeanExprs, tabular.FloatColumn{1, 2}); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	set, err = set.ReplaceFeatureData(fd)
	if err != nil {
		t.Fatalf("ReplaceFeatureData failed: %v", err)
	}

	if _, err := FeatureRows(set); err == nil {
		t.Error("expected error for partial QC columns")
	}
}
