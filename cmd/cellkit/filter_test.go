package main

import (
	"testing"

	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/qc"
	"github.com/cellkit/cellkit/internal/tabular"
)

func flaggedSet(t *testing.T) *exprset.ExprSet {
	t.Helper()

	counts, err := tabular.NewMatrix(
		[]string{"g1", "g2"},
		[]string{"c1", "c2", "c3"},
		[]float64{
			5, 0, 1,
			3, 2, 4,
		},
	)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}

	cd, err := tabular.NewTable([]string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if err := cd.AddColumn(qc.ColFilterTotalCounts, tabular.BoolColumn{false, true, false}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := cd.AddColumn(qc.ColFilterTotalFeatures, tabular.BoolColumn{false, false, true}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}

	set, err := exprset.New(exprset.Config{Counts: counts, CellData: cd})
	if err != nil {
		t.Fatalf("exprset.New: %v", err)
	}
	return set
}

func TestDropFlaggedCells(t *testing.T) {
	set := flaggedSet(t)

	filtered, err := dropFlaggedCells(set)
	if err != nil {
		t.Fatalf("dropFlaggedCells: %v", err)
	}
	if filtered.NumCells() != 1 {
		t.Fatalf("kept %d cells, want 1", filtered.NumCells())
	}
	if got := filtered.CellNames(); got[0] != "c1" {
		t.Errorf("kept cell = %q, want c1", got[0])
	}
	if set.NumCells() != 3 {
		t.Errorf("source was modified, has %d cells", set.NumCells())
	}
}

func TestDropFlaggedCellsWithoutFlags(t *testing.T) {
	counts, err := tabular.NewMatrix(
		[]string{"g1"},
		[]string{"c1"},
		[]float64{1},
	)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	set, err := exprset.New(exprset.Config{Counts: counts})
	if err != nil {
		t.Fatalf("exprset.New: %v", err)
	}

	if _, err := dropFlaggedCells(set); err == nil {
		t.Error("unflagged container accepted")
	}
}
