package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTableAddColumn(t *testing.T) {
	tbl, err := NewTable([]string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	if err := tbl.AddColumn("depth", FloatColumn{8, 2, 4}); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	if err := tbl.AddColumn("depth", FloatColumn{1, 1, 1}); !errors.Is(err, ErrColumnExists) {
		t.Errorf("re-add: got %v, want ErrColumnExists", err)
	}
	if err := tbl.AddColumn("short", FloatColumn{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short column: got %v, want ErrDimensionMismatch", err)
	}

	// Explicit replacement is allowed.
	if err := tbl.SetColumn("depth", FloatColumn{1, 1, 1}); err != nil {
		t.Fatalf("SetColumn failed: %v", err)
	}
	depth, ok := tbl.Float("depth")
	if !ok || depth[0] != 1 {
		t.Errorf("Float(depth) = %v, %v", depth, ok)
	}
}

func TestTableSubsetKeepsColumnOrder(t *testing.T) {
	tbl, _ := NewTable([]string{"a", "b", "c", "d"})
	tbl.AddColumn("x", FloatColumn{1, 2, 3, 4})
	tbl.AddColumn("keep", BoolColumn{true, false, true, false})
	tbl.AddColumn("label", StringColumn{"p", "q", "r", "s"})

	sub := tbl.Subset([]int{2, 0})
	if sub.NumRows() != 2 {
		t.Fatalf("NumRows = %d, want 2", sub.NumRows())
	}
	if got := sub.RowNames(); got[0] != "c" || got[1] != "a" {
		t.Errorf("row names = %v, want [c a]", got)
	}
	wantCols := []string{"x", "keep", "label"}
	for i, name := range sub.ColNames() {
		if name != wantCols[i] {
			t.Errorf("column order = %v, want %v", sub.ColNames(), wantCols)
			break
		}
	}
	x, _ := sub.Float("x")
	if x[0] != 3 || x[1] != 1 {
		t.Errorf("subset x = %v, want [3 1]", x)
	}

	// Mutating the subset leaves the source alone.
	sub.SetColumn("x", FloatColumn{9, 9})
	orig, _ := tbl.Float("x")
	if orig[2] != 3 {
		t.Errorf("source mutated: x = %v", orig)
	}
}

func TestTableDuplicateRows(t *testing.T) {
	if _, err := NewTable([]string{"a", "a"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("got %v, want ErrDuplicateID", err)
	}
}

func TestReadWriteTableRoundTrip(t *testing.T) {
	tbl, _ := NewTable([]string{"c1", "c2"})
	tbl.AddColumn("depth", FloatColumn{8, 2})
	tbl.AddColumn("control", BoolColumn{false, true})
	tbl.AddColumn("batch", StringColumn{"b1", "b2"})

	var buf bytes.Buffer
	if err := WriteTable(&buf, tbl, ',', "cell"); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	back, err := ReadTable(&buf, ',')
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if back.NumRows() != 2 || back.NumCols() != 3 {
		t.Fatalf("round trip dims = %dx%d, want 2x3", back.NumRows(), back.NumCols())
	}
	depth, ok := back.Float("depth")
	if !ok || depth[0] != 8 || depth[1] != 2 {
		t.Errorf("depth = %v, %v", depth, ok)
	}
	ctrl, ok := back.Bool("control")
	if !ok || ctrl[0] || !ctrl[1] {
		t.Errorf("control = %v, %v", ctrl, ok)
	}
}

func TestReadMatrix(t *testing.T) {
	in := "gene\tc1\tc2\ng1\t5\t0\ng2\t3\t2\n"
	m, err := ReadMatrix(strings.NewReader(in), '\t')
	if err != nil {
		t.Fatalf("ReadMatrix failed: %v", err)
	}
	nr, nc := m.Dims()
	if nr != 2 || nc != 2 {
		t.Fatalf("dims = %dx%d, want 2x2", nr, nc)
	}
	if m.At(1, 0) != 3 {
		t.Errorf("At(1,0) = %v, want 3", m.At(1, 0))
	}

	if _, err := ReadMatrix(strings.NewReader("gene\tc1\ng1\tnot-a-number\n"), '\t'); err == nil {
		t.Error("expected parse error for non-numeric value")
	}
	if _, err := ReadMatrix(strings.NewReader("gene\tc1\tc2\ng1\t1\n"), '\t'); err == nil {
		t.Error("expected error for ragged row")
	}
}
