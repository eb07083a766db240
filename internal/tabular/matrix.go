// Package tabular provides labeled matrices and ordered metadata tables for
// expression data. Rows are features (genes), columns are cells.
package tabular

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense float64 matrix with unique row and column names.
// A Matrix is immutable after construction: all transformations return a
// new Matrix.
type Matrix struct {
	data     *mat.Dense
	rowNames []string
	colNames []string
	rowIndex map[string]int
	colIndex map[string]int
}

// NewMatrix builds a matrix from row-major values. len(values) must equal
// len(rowNames)*len(colNames) and names must be unique within each axis.
func NewMatrix(rowNames, colNames []string, values []float64) (*Matrix, error) {
	nr, nc := len(rowNames), len(colNames)
	if len(values) != nr*nc {
		return nil, fmt.Errorf("%w: %d values for %dx%d matrix", ErrDimensionMismatch, len(values), nr, nc)
	}
	rowIndex, err := buildIndex(rowNames, "row")
	if err != nil {
		return nil, err
	}
	colIndex, err := buildIndex(colNames, "column")
	if err != nil {
		return nil, err
	}

	data := make([]float64, len(values))
	copy(data, values)

	return &Matrix{
		data:     mat.NewDense(nr, nc, data),
		rowNames: copyStrings(rowNames),
		colNames: copyStrings(colNames),
		rowIndex: rowIndex,
		colIndex: colIndex,
	}, nil
}

// NewMatrixFromDense builds a matrix around a copy of d.
func NewMatrixFromDense(rowNames, colNames []string, d *mat.Dense) (*Matrix, error) {
	nr, nc := d.Dims()
	if nr != len(rowNames) || nc != len(colNames) {
		return nil, fmt.Errorf("%w: %dx%d dense for %d row / %d column labels",
			ErrDimensionMismatch, nr, nc, len(rowNames), len(colNames))
	}
	rowIndex, err := buildIndex(rowNames, "row")
	if err != nil {
		return nil, err
	}
	colIndex, err := buildIndex(colNames, "column")
	if err != nil {
		return nil, err
	}

	var cp mat.Dense
	cp.CloneFrom(d)

	return &Matrix{
		data:     &cp,
		rowNames: copyStrings(rowNames),
		colNames: copyStrings(colNames),
		rowIndex: rowIndex,
		colIndex: colIndex,
	}, nil
}

func buildIndex(names []string, axis string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := idx[n]; ok {
			return nil, fmt.Errorf("%w: %s %q", ErrDuplicateID, axis, n)
		}
		idx[n] = i
	}
	return idx, nil
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Dims returns the number of rows (features) and columns (cells).
func (m *Matrix) Dims() (r, c int) { return m.data.Dims() }

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 { return m.data.At(i, j) }

// RowNames returns a copy of the row labels.
func (m *Matrix) RowNames() []string { return copyStrings(m.rowNames) }

// ColNames returns a copy of the column labels.
func (m *Matrix) ColNames() []string { return copyStrings(m.colNames) }

// RowIndex returns the index of the named row.
func (m *Matrix) RowIndex(name string) (int, bool) {
	i, ok := m.rowIndex[name]
	return i, ok
}

// ColIndex returns the index of the named column.
func (m *Matrix) ColIndex(name string) (int, bool) {
	j, ok := m.colIndex[name]
	return j, ok
}

// Row copies row i into dst, allocating when dst is too short.
func (m *Matrix) Row(i int, dst []float64) []float64 {
	_, nc := m.data.Dims()
	if cap(dst) < nc {
		dst = make([]float64, nc)
	}
	dst = dst[:nc]
	mat.Row(dst, i, m.data)
	return dst
}

// Col copies column j into dst, allocating when dst is too short.
func (m *Matrix) Col(j int, dst []float64) []float64 {
	nr, _ := m.data.Dims()
	if cap(dst) < nr {
		dst = make([]float64, nr)
	}
	dst = dst[:nr]
	mat.Col(dst, j, m.data)
	return dst
}

// RowSums returns per-row totals.
func (m *Matrix) RowSums() []float64 {
	nr, _ := m.data.Dims()
	sums := make([]float64, nr)
	buf := make([]float64, 0)
	for i := 0; i < nr; i++ {
		buf = m.Row(i, buf)
		sums[i] = floats.Sum(buf)
	}
	return sums
}

// ColSums returns per-column totals.
func (m *Matrix) ColSums() []float64 {
	_, nc := m.data.Dims()
	sums := make([]float64, nc)
	buf := make([]float64, 0)
	for j := 0; j < nc; j++ {
		buf = m.Col(j, buf)
		sums[j] = floats.Sum(buf)
	}
	return sums
}

// Map returns a new matrix with f applied to every element.
func (m *Matrix) Map(f func(i, j int, v float64) float64) *Matrix {
	nr, nc := m.data.Dims()
	var out mat.Dense
	out.CloneFrom(m.data)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			out.Set(i, j, f(i, j, m.data.At(i, j)))
		}
	}
	return &Matrix{
		data:     &out,
		rowNames: m.rowNames,
		colNames: m.colNames,
		rowIndex: m.rowIndex,
		colIndex: m.colIndex,
	}
}

// Detected applies a strict greater-than comparison against limit to every
// element. A value exactly equal to limit is not detected.
func (m *Matrix) Detected(limit float64) *BoolMatrix {
	nr, nc := m.data.Dims()
	b := NewBoolMatrix(m.rowNames, m.colNames)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			if m.data.At(i, j) > limit {
				b.Set(i, j, true)
			}
		}
	}
	return b
}

// Subset returns a new matrix restricted to the given row and column
// indices, in the given order. Nil keeps an axis whole.
func (m *Matrix) Subset(rowIdx, colIdx []int) *Matrix {
	nr, nc := m.data.Dims()
	if rowIdx == nil {
		rowIdx = iota0(nr)
	}
	if colIdx == nil {
		colIdx = iota0(nc)
	}

	rowNames := make([]string, len(rowIdx))
	for k, i := range rowIdx {
		rowNames[k] = m.rowNames[i]
	}
	colNames := make([]string, len(colIdx))
	for k, j := range colIdx {
		colNames[k] = m.colNames[j]
	}

	out := mat.NewDense(len(rowIdx), len(colIdx), nil)
	for a, i := range rowIdx {
		for b, j := range colIdx {
			out.Set(a, b, m.data.At(i, j))
		}
	}

	// Labels stay unique under subsetting, so index building cannot fail.
	rowIndex, _ := buildIndex(rowNames, "row")
	colIndex, _ := buildIndex(colNames, "column")
	return &Matrix{
		data:     out,
		rowNames: rowNames,
		colNames: colNames,
		rowIndex: rowIndex,
		colIndex: colIndex,
	}
}

// Values returns the matrix contents in row-major order.
func (m *Matrix) Values() []float64 {
	nr, nc := m.data.Dims()
	out := make([]float64, 0, nr*nc)
	for i := 0; i < nr; i++ {
		out = append(out, m.data.RawRowView(i)...)
	}
	return out
}

func iota0(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
