package features

import (
	"fmt"
	"io"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/crashed/internal/table"
)

// Matrix is a rectangular, name-addressable set of float64 columns. Column
// order is the order columns were added and is part of the matrix contract.
type Matrix struct {
	columns *orderedmap.OrderedMap[string, []float64]
	rows    int
}

// NewMatrix returns an empty matrix with the given row count.
func NewMatrix(rows int) *Matrix {
	return &Matrix{
		columns: orderedmap.NewOrderedMap[string, []float64](),
		rows:    rows,
	}
}

// AddColumn appends a column. values is copied.
func (m *Matrix) AddColumn(name string, values []float64) error {
	if len(values) != m.rows {
		return &table.ShapeMismatchError{
			Context:  fmt.Sprintf("matrix column %q", name),
			Expected: m.rows,
			Actual:   len(values),
		}
	}
	if _, exists := m.columns.Get(name); exists {
		return &table.SchemaError{Column: name, Reason: "duplicate matrix column"}
	}
	m.columns.Set(name, append([]float64(nil), values...))
	return nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Width returns the number of columns.
func (m *Matrix) Width() int { return m.columns.Len() }

// Columns returns the column names in matrix order.
func (m *Matrix) Columns() []string {
	names := make([]string, 0, m.columns.Len())
	for el := m.columns.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}

// Column returns a copy of the named column.
func (m *Matrix) Column(name string) ([]float64, bool) {
	values, ok := m.columns.Get(name)
	if !ok {
		return nil, false
	}
	return append([]float64(nil), values...), true
}

// Row returns row i across all columns, in matrix order.
func (m *Matrix) Row(i int) []float64 {
	row := make([]float64, 0, m.columns.Len())
	for el := m.columns.Front(); el != nil; el = el.Next() {
		row = append(row, el.Value[i])
	}
	return row
}

// Table converts the matrix to a numeric table. NaN cells become nulls.
func (m *Matrix) Table() *table.Table {
	cols := make([]*table.Column, 0, m.columns.Len())
	for el := m.columns.Front(); el != nil; el = el.Next() {
		cols = append(cols, table.NewNumeric(el.Key, el.Value, nil))
	}
	// Columns are rectangular and uniquely named by construction.
	t, err := table.New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// MatrixFromTable converts a table whose columns are all numeric.
func MatrixFromTable(t *table.Table) (*Matrix, error) {
	m := NewMatrix(t.Rows())
	for _, col := range t.Columns() {
		if col.Kind() != table.KindNumeric {
			return nil, &table.SchemaError{
				Column: col.Name(),
				Reason: fmt.Sprintf("matrix columns must be numeric, found %s", col.Kind()),
			}
		}
		if err := m.AddColumn(col.Name(), col.Floats()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// WriteCSV writes the matrix as CSV with a header row. A matrix without
// columns has no CSV form and is refused.
func (m *Matrix) WriteCSV(w io.Writer) error {
	if m.Width() == 0 {
		return fmt.Errorf("write matrix: %d rows but no columns: %w", m.rows, table.ErrEmptyRecord)
	}
	return table.WriteCSV(w, m.Table())
}

// ReadMatrixCSV reads a matrix written by WriteCSV.
func ReadMatrixCSV(r io.Reader) (*Matrix, error) {
	t, err := table.ReadNumericCSV(r)
	if err != nil {
		return nil, err
	}
	return MatrixFromTable(t)
}
