// Package table provides the explicitly typed, immutable in-memory table that
// every pipeline stage reads from and writes to.
//
// A Table is an ordered set of named columns. Each column is either categorical
// (string values) or numeric (float64 values) and carries its own null mask. The
// kind of a column is fixed when the table is loaded; nothing is inferred later.
package table

import (
	"fmt"
	"math"

	"github.com/elliotchance/orderedmap/v2"
)

// Kind is the logical type of a column.
type Kind int

const (
	// KindCategorical columns hold string values.
	KindCategorical Kind = iota
	// KindNumeric columns hold float64 values.
	KindNumeric
)

// String returns the kind name as used in error messages and schemas.
func (k Kind) String() string {
	switch k {
	case KindCategorical:
		return "categorical"
	case KindNumeric:
		return "numeric"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column is a single named, typed column.
type Column struct {
	name    string
	kind    Kind
	strings []string
	numbers []float64
	nulls   []bool
}

// NewCategorical creates a categorical column. nulls may be nil when the column
// has no missing values. The slices are copied.
func NewCategorical(name string, values []string, nulls []bool) *Column {
	return &Column{
		name:    name,
		kind:    KindCategorical,
		strings: append([]string(nil), values...),
		nulls:   copyMask(nulls, len(values)),
	}
}

// NewNumeric creates a numeric column. A NaN value is recorded as null.
func NewNumeric(name string, values []float64, nulls []bool) *Column {
	mask := copyMask(nulls, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			mask[i] = true
		}
	}
	return &Column{
		name:    name,
		kind:    KindNumeric,
		numbers: append([]float64(nil), values...),
		nulls:   mask,
	}
}

func copyMask(nulls []bool, n int) []bool {
	mask := make([]bool, n)
	copy(mask, nulls)
	return mask
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the column kind.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.kind == KindNumeric {
		return len(c.numbers)
	}
	return len(c.strings)
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return c.nulls[i] }

// NullCount returns the number of missing rows.
func (c *Column) NullCount() int {
	n := 0
	for _, null := range c.nulls {
		if null {
			n++
		}
	}
	return n
}

// Str returns the categorical value at row i. It panics on a numeric column.
func (c *Column) Str(i int) string {
	if c.kind != KindCategorical {
		panic(fmt.Sprintf("table: Str called on %s column %q", c.kind, c.name))
	}
	return c.strings[i]
}

// Float returns the numeric value at row i, or NaN if the row is null.
// It panics on a categorical column.
func (c *Column) Float(i int) float64 {
	if c.kind != KindNumeric {
		panic(fmt.Sprintf("table: Float called on %s column %q", c.kind, c.name))
	}
	if c.nulls[i] {
		return math.NaN()
	}
	return c.numbers[i]
}

// Floats returns a copy of the numeric values with nulls as NaN.
func (c *Column) Floats() []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		out[i] = c.Float(i)
	}
	return out
}

// Table is an immutable, ordered collection of columns sharing a row count.
type Table struct {
	columns *orderedmap.OrderedMap[string, *Column]
	rows    int
}

// New builds a table from columns in the given order. All columns must have the
// same length and distinct names.
func New(columns ...*Column) (*Table, error) {
	t := &Table{columns: orderedmap.NewOrderedMap[string, *Column]()}
	for i, col := range columns {
		if i == 0 {
			t.rows = col.Len()
		} else if col.Len() != t.rows {
			return nil, &ShapeMismatchError{
				Context:  fmt.Sprintf("column %q", col.name),
				Expected: t.rows,
				Actual:   col.Len(),
			}
		}
		if _, exists := t.columns.Get(col.name); exists {
			return nil, &SchemaError{Column: col.name, Reason: "duplicate column"}
		}
		t.columns.Set(col.name, col)
	}
	return t, nil
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return t.columns.Len() }

// Names returns the column names in table order.
func (t *Table) Names() []string {
	names := make([]string, 0, t.columns.Len())
	for el := t.columns.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
	}
	return names
}

// Columns returns the columns in table order.
func (t *Table) Columns() []*Column {
	cols := make([]*Column, 0, t.columns.Len())
	for el := t.columns.Front(); el != nil; el = el.Next() {
		cols = append(cols, el.Value)
	}
	return cols
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	return t.columns.Get(name)
}

// Require returns the named column, failing with a SchemaError when it is
// absent or not of the expected kind.
func (t *Table) Require(name string, kind Kind) (*Column, error) {
	col, ok := t.columns.Get(name)
	if !ok {
		return nil, missingColumn(name)
	}
	if col.kind != kind {
		return nil, &SchemaError{
			Column: name,
			Reason: fmt.Sprintf("expected %s column, found %s", kind, col.kind),
		}
	}
	return col, nil
}
