package tabular

import "fmt"

// Table is an ordered collection of typed columns sharing one set of row
// names. Column order is preserved across clones and subsets.
type Table struct {
	rowNames []string
	rowIndex map[string]int
	colNames []string
	cols     map[string]Column
}

// NewTable returns an empty table keyed by rowNames.
func NewTable(rowNames []string) (*Table, error) {
	rowIndex, err := buildIndex(rowNames, "row")
	if err != nil {
		return nil, err
	}
	return &Table{
		rowNames: copyStrings(rowNames),
		rowIndex: rowIndex,
		cols:     make(map[string]Column),
	}, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rowNames) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.colNames) }

// RowNames returns a copy of the row names.
func (t *Table) RowNames() []string { return copyStrings(t.rowNames) }

// ColNames returns the column names in insertion order.
func (t *Table) ColNames() []string { return copyStrings(t.colNames) }

// RowIndex returns the index of the named row.
func (t *Table) RowIndex(name string) (int, bool) {
	i, ok := t.rowIndex[name]
	return i, ok
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// AddColumn appends a new column. It fails with ErrColumnExists when the
// name is taken and with ErrDimensionMismatch when lengths disagree.
func (t *Table) AddColumn(name string, c Column) error {
	if _, ok := t.cols[name]; ok {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	return t.SetColumn(name, c)
}

// SetColumn adds or explicitly replaces a column.
func (t *Table) SetColumn(name string, c Column) error {
	if c.Len() != len(t.rowNames) {
		return fmt.Errorf("%w: column %q has %d values for %d rows",
			ErrDimensionMismatch, name, c.Len(), len(t.rowNames))
	}
	if _, ok := t.cols[name]; !ok {
		t.colNames = append(t.colNames, name)
	}
	t.cols[name] = c.clone()
	return nil
}

// Float returns the named column as []float64 when it is a FloatColumn.
func (t *Table) Float(name string) ([]float64, bool) {
	c, ok := t.cols[name].(FloatColumn)
	return c, ok
}

// Bool returns the named column as []bool when it is a BoolColumn.
func (t *Table) Bool(name string) ([]bool, bool) {
	c, ok := t.cols[name].(BoolColumn)
	return c, ok
}

// Int returns the named column as []int when it is an IntColumn.
func (t *Table) Int(name string) ([]int, bool) {
	c, ok := t.cols[name].(IntColumn)
	return c, ok
}

// Strings returns the named column as []string when it is a StringColumn.
func (t *Table) Strings(name string) ([]string, bool) {
	c, ok := t.cols[name].(StringColumn)
	return c, ok
}

// Subset returns a new table containing the given rows in the given order.
func (t *Table) Subset(idx []int) *Table {
	rowNames := make([]string, len(idx))
	for k, i := range idx {
		rowNames[k] = t.rowNames[i]
	}
	rowIndex, _ := buildIndex(rowNames, "row")

	out := &Table{
		rowNames: rowNames,
		rowIndex: rowIndex,
		colNames: copyStrings(t.colNames),
		cols:     make(map[string]Column, len(t.cols)),
	}
	for name, c := range t.cols {
		out.cols[name] = c.subset(idx)
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		rowNames: copyStrings(t.rowNames),
		rowIndex: make(map[string]int, len(t.rowIndex)),
		colNames: copyStrings(t.colNames),
		cols:     make(map[string]Column, len(t.cols)),
	}
	for name, i := range t.rowIndex {
		out.rowIndex[name] = i
	}
	for name, c := range t.cols {
		out.cols[name] = c.clone()
	}
	return out
}
