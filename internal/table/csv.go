package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Schema declares the kind of each column when reading a table. Columns not
// listed are read as categorical.
type Schema map[string]Kind

// NumericSchema returns a schema declaring every named column numeric.
func NumericSchema(names ...string) Schema {
	s := make(Schema, len(names))
	for _, n := range names {
		s[n] = KindNumeric
	}
	return s
}

// ReadCSV reads a table from CSV with a header row. An empty cell is null.
// Every column named in schema must be present in the header, and every cell of
// a numeric column must parse as a float.
func ReadCSV(r io.Reader, schema Schema) (*Table, error) {
	return readCSV(r, schema, func(name string) Kind { return schema[name] })
}

// ReadNumericCSV reads a table in which every column is numeric, such as an
// encoded feature matrix.
func ReadNumericCSV(r io.Reader) (*Table, error) {
	return readCSV(r, nil, func(string) Kind { return KindNumeric })
}

func readCSV(r io.Reader, schema Schema, kindOf func(name string) Kind) (*Table, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read csv: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if seen[name] {
			return nil, &SchemaError{Column: name, Reason: "duplicate column in header"}
		}
		seen[name] = true
	}
	for name := range schema {
		if !seen[name] {
			return nil, missingColumn(name)
		}
	}

	cells := make([][]string, len(header))
	nulls := make([][]bool, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		for i, cell := range record {
			cells[i] = append(cells[i], cell)
			nulls[i] = append(nulls[i], cell == "")
		}
	}

	columns := make([]*Column, len(header))
	for i, name := range header {
		if kindOf(name) != KindNumeric {
			columns[i] = NewCategorical(name, cells[i], nulls[i])
			continue
		}
		values := make([]float64, len(cells[i]))
		for row, cell := range cells[i] {
			if nulls[i][row] {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, &SchemaError{
					Column: name,
					Reason: fmt.Sprintf("row %d: %q is not numeric", row, cell),
				}
			}
			values[row] = v
		}
		columns[i] = NewNumeric(name, values, nulls[i])
	}

	return New(columns...)
}

// ErrEmptyRecord is returned when a CSV record has no fields. Such a record
// would render as a blank line, which readers skip.
var ErrEmptyRecord = errors.New("csv record has no fields")

// RecordWriter writes CSV records so that every record reads back as a row.
// A record holding one empty field is written as `""` instead of a blank line.
type RecordWriter struct {
	out io.Writer
	csv *csv.Writer
}

// NewRecordWriter returns a RecordWriter on w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{out: w, csv: csv.NewWriter(w)}
}

// Write writes one record.
func (r *RecordWriter) Write(record []string) error {
	if len(record) == 0 {
		return ErrEmptyRecord
	}
	if len(record) == 1 && record[0] == "" {
		if err := r.Flush(); err != nil {
			return err
		}
		_, err := io.WriteString(r.out, "\"\"\n")
		return err
	}
	return r.csv.Write(record)
}

// Flush writes buffered records to the underlying writer.
func (r *RecordWriter) Flush() error {
	r.csv.Flush()
	return r.csv.Error()
}

// WriteCSV writes the table as CSV with a header row. Nulls are written as
// empty cells and numbers in their shortest round-trip form. A table without
// columns cannot be written.
func WriteCSV(w io.Writer, t *Table) error {
	writer := NewRecordWriter(w)
	if err := writer.Write(t.Names()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	cols := t.Columns()
	record := make([]string, len(cols))
	for row := 0; row < t.Rows(); row++ {
		for i, col := range cols {
			record[i] = FormatCell(col, row)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", row, err)
		}
	}

	return writer.Flush()
}

// FormatCell renders a single cell the way WriteCSV does.
func FormatCell(col *Column, row int) string {
	if col.IsNull(row) {
		return ""
	}
	if col.Kind() == KindNumeric {
		return strconv.FormatFloat(col.Float(row), 'g', -1, 64)
	}
	return col.Str(row)
}
