package norm

import (
	"math"
	"testing"

	"github.com/cellkit/cellkit/internal/tabular"
)

func countsMatrix(t *testing.T) *tabular.Matrix {
	t.Helper()
	m, err := tabular.NewMatrix(
		[]string{"g1", "g2"},
		[]string{"c1", "c2", "c3"},
		[]float64{
			5, 0, 0,
			3, 2, 0,
		},
	)
	if err != nil {
		t.Fatalf("NewMatrix failed: %v", err)
	}
	return m
}

func TestCPM(t *testing.T) {
	cpm := CPM(countsMatrix(t))

	// Column 1: depth 8 -> [5/8, 3/8] * 1e6.
	if got, want := cpm.At(0, 0), 5.0/8.0*1e6; math.Abs(got-want) > 1e-9 {
		t.Errorf("CPM[0,0] = %v, want %v", got, want)
	}
	if got, want := cpm.At(1, 1), 1e6; math.Abs(got-want) > 1e-9 {
		t.Errorf("CPM[1,1] = %v, want %v", got, want)
	}
	// Zero-depth column stays zero, not NaN.
	if got := cpm.At(0, 2); got != 0 {
		t.Errorf("CPM[0,2] = %v, want 0", got)
	}
}

func TestLogCPM(t *testing.T) {
	lcpm := LogCPM(countsMatrix(t), 1)

	want := math.Log2(5.0/8.0*1e6 + 1)
	if got := lcpm.At(0, 0); math.Abs(got-want) > 1e-9 {
		t.Errorf("LogCPM[0,0] = %v, want %v", got, want)
	}
	// Zero counts map to log2(offset).
	if got := lcpm.At(0, 1); got != 0 {
		t.Errorf("LogCPM[0,1] = %v, want 0", got)
	}
}

func TestTotalCount(t *testing.T) {
	tc := TotalCount(countsMatrix(t), 100)
	if got := tc.At(0, 0); math.Abs(got-62.5) > 1e-9 {
		t.Errorf("TotalCount[0,0] = %v, want 62.5", got)
	}
	colSum := tc.At(0, 0) + tc.At(1, 0)
	if math.Abs(colSum-100) > 1e-9 {
		t.Errorf("column sum = %v, want 100", colSum)
	}
}
