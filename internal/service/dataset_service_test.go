package service

import (
	"testing"

	"github.com/cellkit/cellkit/internal/dist"
	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/plot"
	"github.com/cellkit/cellkit/internal/qc"
	"github.com/cellkit/cellkit/internal/tabular"
)

func newTestService(t *testing.T) *DatasetService {
	t.Helper()

	counts, err := tabular.NewMatrix(
		[]string{"g1", "g2", "g3"},
		[]string{"c1", "c2", "c3"},
		[]float64{
			5, 0, 1,
			3, 2, 4,
			0, 1, 2,
		},
	)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	set, err := exprset.New(exprset.Config{Counts: counts})
	if err != nil {
		t.Fatalf("exprset.New: %v", err)
	}

	store, err := dist.NewStore(4)
	if err != nil {
		t.Fatalf("dist.NewStore: %v", err)
	}

	svc, err := NewDatasetService(DatasetServiceConfig{
		DatasetID: "pbmc",
		Set:       set,
		Renderer:  plot.NewRenderer(plot.Config{Width: 160, Height: 120}),
		Distances: store,
	})
	if err != nil {
		t.Fatalf("NewDatasetService: %v", err)
	}
	return svc
}

func TestSummary(t *testing.T) {
	svc := newTestService(t)

	sum := svc.Summary()
	if sum.Dataset != "pbmc" {
		t.Errorf("dataset = %q, want pbmc", sum.Dataset)
	}
	if sum.NFeatures != 3 || sum.NCells != 3 {
		t.Errorf("shape = %dx%d, want 3x3", sum.NFeatures, sum.NCells)
	}
	if !sum.HasCounts {
		t.Error("HasCounts = false, want true")
	}
	if sum.DepthSource != "counts" {
		t.Errorf("depth source = %q, want counts", sum.DepthSource)
	}

	// Construction runs the QC calculation, so the metric columns exist.
	if _, ok := svc.Set().CellData().Float(qc.ColTotalCounts); !ok {
		t.Errorf("cell data has no %q column after construction", qc.ColTotalCounts)
	}
}

func TestCellsPaging(t *testing.T) {
	svc := newTestService(t)

	all, total, err := svc.Cells(0, 0)
	if err != nil {
		t.Fatalf("Cells: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("total = %d, len = %d, want 3 and 3", total, len(all))
	}

	page, total, err := svc.Cells(1, 1)
	if err != nil {
		t.Fatalf("Cells paged: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].Cell != "c2" {
		t.Errorf("page = %+v (total %d)", page, total)
	}

	empty, _, err := svc.Cells(10, 5)
	if err != nil {
		t.Fatalf("Cells past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("past-end page has %d rows", len(empty))
	}
}

func TestFeaturesPaging(t *testing.T) {
	svc := newTestService(t)

	rows, total, err := svc.Features(0, 2)
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Errorf("total = %d, len = %d, want 3 and 2", total, len(rows))
	}
}

func TestDistances(t *testing.T) {
	svc := newTestService(t)

	m, err := svc.Distances("cells", "euclidean")
	if err != nil {
		t.Fatalf("Distances: %v", err)
	}
	if m.Dim() != 3 {
		t.Errorf("dim = %d, want 3", m.Dim())
	}

	// Second call hits the cache and returns the same matrix.
	m2, err := svc.Distances("cells", "euclidean")
	if err != nil {
		t.Fatalf("Distances cached: %v", err)
	}
	if m2 != m {
		t.Error("cached call returned a different matrix")
	}

	if _, err := svc.Distances("cells", "cosine"); err == nil {
		t.Error("unknown metric accepted")
	}
	if _, err := svc.Distances("rows", "euclidean"); err == nil {
		t.Error("unknown axis accepted")
	}
}

func TestPlotCaching(t *testing.T) {
	svc := newTestService(t)

	a, err := svc.DepthHistogramPlot(10)
	if err != nil {
		t.Fatalf("DepthHistogramPlot: %v", err)
	}
	b, err := svc.DepthHistogramPlot(10)
	if err != nil {
		t.Fatalf("DepthHistogramPlot cached: %v", err)
	}
	if &a[0] != &b[0] {
		t.Error("cached plot was re-rendered")
	}
}
