package tabular

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadMatrixFile reads a delimited count table from path. The first column
// holds feature identifiers, the header row holds cell identifiers. Files
// ending in .gz are decompressed, files ending in .tsv or .tsv.gz are read
// as tab-separated.
func ReadMatrixFile(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	name := path
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	comma := ','
	if strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt") {
		comma = '\t'
	}
	return ReadMatrix(r, comma)
}

// ReadMatrix reads a delimited feature-by-cell matrix from r.
func ReadMatrix(r io.Reader, comma rune) (*Matrix, error) {
	c := csv.NewReader(r)
	c.Comma = comma
	c.Comment = '#'

	header, err := c.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: header has %d fields, need an id column and at least one cell", ErrDimensionMismatch, len(header))
	}
	cells := header[1:]

	var features []string
	var values []float64

	c.ReuseRecord = true
	for {
		rec, err := c.Read()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			break
		}
		if len(rec) != len(cells)+1 {
			return nil, fmt.Errorf("%w: row %q has %d fields, expected %d",
				ErrDimensionMismatch, rec[0], len(rec), len(cells)+1)
		}
		features = append(features, rec[0])
		for i, field := range rec[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing value for %q in cell %q: %v", rec[0], cells[i], err)
			}
			values = append(values, v)
		}
	}

	return NewMatrix(features, cells, values)
}

// WriteMatrix writes m to w in the same layout ReadMatrix expects.
func WriteMatrix(w io.Writer, m *Matrix, comma rune, idHeader string) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	nr, nc := m.Dims()
	header := make([]string, 0, nc+1)
	header = append(header, idHeader)
	header = append(header, m.colNames...)
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, nc+1)
	for i := 0; i < nr; i++ {
		rec[0] = m.rowNames[i]
		for j := 0; j < nc; j++ {
			rec[j+1] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTableFile reads a metadata table from a delimited file. The first
// column holds row identifiers. A column whose every value parses as a
// number becomes a FloatColumn, one whose every value is true/false becomes
// a BoolColumn, anything else stays a StringColumn.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	name := path
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	comma := ','
	if strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt") {
		comma = '\t'
	}
	return ReadTable(r, comma)
}

// ReadTable reads a metadata table from r.
func ReadTable(r io.Reader, comma rune) (*Table, error) {
	c := csv.NewReader(r)
	c.Comma = comma
	c.Comment = '#'

	header, err := c.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if len(header) < 1 {
		return nil, fmt.Errorf("%w: empty header", ErrDimensionMismatch)
	}
	colNames := header[1:]

	var rowNames []string
	raw := make([][]string, len(colNames))

	for {
		rec, err := c.Read()
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			break
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: row %q has %d fields, expected %d",
				ErrDimensionMismatch, rec[0], len(rec), len(header))
		}
		rowNames = append(rowNames, rec[0])
		for i, v := range rec[1:] {
			raw[i] = append(raw[i], v)
		}
	}

	t, err := NewTable(rowNames)
	if err != nil {
		return nil, err
	}
	for i, name := range colNames {
		if err := t.AddColumn(name, inferColumn(raw[i])); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func inferColumn(values []string) Column {
	isFloat, isBool := len(values) > 0, len(values) > 0
	for _, v := range values {
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if v != "true" && v != "false" && v != "TRUE" && v != "FALSE" {
				isBool = false
			}
		}
		if !isFloat && !isBool {
			break
		}
	}

	switch {
	case isBool:
		out := make(BoolColumn, len(values))
		for i, v := range values {
			out[i] = v == "true" || v == "TRUE"
		}
		return out
	case isFloat:
		out := make(FloatColumn, len(values))
		for i, v := range values {
			out[i], _ = strconv.ParseFloat(v, 64)
		}
		return out
	default:
		out := make(StringColumn, len(values))
		copy(out, values)
		return out
	}
}

// WriteTable writes t to w with the row identifier in the first column.
func WriteTable(w io.Writer, t *Table, comma rune, idHeader string) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	header := make([]string, 0, t.NumCols()+1)
	header = append(header, idHeader)
	header = append(header, t.colNames...)
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for i, row := range t.rowNames {
		rec[0] = row
		for k, name := range t.colNames {
			rec[k+1] = t.cols[name].Format(i)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
