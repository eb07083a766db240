package tabular

import "strconv"

// Column is one typed column of a Table.
type Column interface {
	Len() int

	// Format renders row i for text output.
	Format(i int) string

	subset(idx []int) Column
	clone() Column
}

// FloatColumn holds float64 values.
type FloatColumn []float64

func (c FloatColumn) Len() int              { return len(c) }
func (c FloatColumn) Format(i int) string   { return strconv.FormatFloat(c[i], 'g', -1, 64) }
func (c FloatColumn) subset(idx []int) Column {
	out := make(FloatColumn, len(idx))
	for k, i := range idx {
		out[k] = c[i]
	}
	return out
}
func (c FloatColumn) clone() Column {
	out := make(FloatColumn, len(c))
	copy(out, c)
	return out
}

// IntColumn holds int values.
type IntColumn []int

func (c IntColumn) Len() int            { return len(c) }
func (c IntColumn) Format(i int) string { return strconv.Itoa(c[i]) }
func (c IntColumn) subset(idx []int) Column {
	out := make(IntColumn, len(idx))
	for k, i := range idx {
		out[k] = c[i]
	}
	return out
}
func (c IntColumn) clone() Column {
	out := make(IntColumn, len(c))
	copy(out, c)
	return out
}

// BoolColumn holds bool values.
type BoolColumn []bool

func (c BoolColumn) Len() int            { return len(c) }
func (c BoolColumn) Format(i int) string { return strconv.FormatBool(c[i]) }
func (c BoolColumn) subset(idx []int) Column {
	out := make(BoolColumn, len(idx))
	for k, i := range idx {
		out[k] = c[i]
	}
	return out
}
func (c BoolColumn) clone() Column {
	out := make(BoolColumn, len(c))
	copy(out, c)
	return out
}

// StringColumn holds string values.
type StringColumn []string

func (c StringColumn) Len() int            { return len(c) }
func (c StringColumn) Format(i int) string { return c[i] }
func (c StringColumn) subset(idx []int) Column {
	out := make(StringColumn, len(idx))
	for k, i := range idx {
		out[k] = c[i]
	}
	return out
}
func (c StringColumn) clone() Column {
	out := make(StringColumn, len(c))
	copy(out, c)
	return out
}
