package tabular

// BoolMatrix is a labeled boolean matrix with the same axis conventions as
// Matrix. It is the result shape of detection calls.
type BoolMatrix struct {
	rowNames []string
	colNames []string
	vals     []bool // row-major
}

// NewBoolMatrix returns an all-false matrix with the given labels.
func NewBoolMatrix(rowNames, colNames []string) *BoolMatrix {
	return &BoolMatrix{
		rowNames: copyStrings(rowNames),
		colNames: copyStrings(colNames),
		vals:     make([]bool, len(rowNames)*len(colNames)),
	}
}

// Dims returns the number of rows and columns.
func (b *BoolMatrix) Dims() (r, c int) { return len(b.rowNames), len(b.colNames) }

// At returns the value at row i, column j.
func (b *BoolMatrix) At(i, j int) bool { return b.vals[i*len(b.colNames)+j] }

// Set sets the value at row i, column j.
func (b *BoolMatrix) Set(i, j int, v bool) { b.vals[i*len(b.colNames)+j] = v }

// RowNames returns a copy of the row labels.
func (b *BoolMatrix) RowNames() []string { return copyStrings(b.rowNames) }

// ColNames returns a copy of the column labels.
func (b *BoolMatrix) ColNames() []string { return copyStrings(b.colNames) }

// RowCounts returns, for each row, the number of true cells. For a
// detection matrix this is the number of cells a feature is expressed in.
func (b *BoolMatrix) RowCounts() []int {
	counts := make([]int, len(b.rowNames))
	for i := range b.rowNames {
		for j := range b.colNames {
			if b.At(i, j) {
				counts[i]++
			}
		}
	}
	return counts
}

// ColCounts returns, for each column, the number of true cells. For a
// detection matrix this is the per-cell coverage.
func (b *BoolMatrix) ColCounts() []int {
	counts := make([]int, len(b.colNames))
	for i := range b.rowNames {
		for j := range b.colNames {
			if b.At(i, j) {
				counts[j]++
			}
		}
	}
	return counts
}
