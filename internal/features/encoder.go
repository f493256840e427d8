package features

import (
	"fmt"

	"github.com/dbsmedya/crashed/internal/table"
)

// IndicatorName returns the name of the indicator column for value of column.
func IndicatorName(column, value string) string {
	return column + "_" + value
}

// Encode expands every catalog column of t into one indicator column per
// catalog value, in catalog order. Each row sets exactly one indicator of each
// group to 1.
//
// Only strict encoding is supported: a value missing from the catalog, null
// included, fails the whole call with *UnknownCategoryError.
func Encode(t *table.Table, catalog *Catalog, strict bool) (*Matrix, error) {
	if !strict {
		return nil, ErrLenientEncodingUnsupported
	}

	names := make(map[string]string, catalog.Width())
	for _, column := range catalog.Columns() {
		values, _ := catalog.Values(column)
		for _, v := range values {
			name := IndicatorName(column, v)
			if owner, taken := names[name]; taken {
				return nil, &table.SchemaError{
					Column: column,
					Reason: fmt.Sprintf("indicator %q for value %q collides with %s", name, v, owner),
				}
			}
			names[name] = fmt.Sprintf("column %q", column)
		}
	}

	block := NewMatrix(t.Rows())
	for _, column := range catalog.Columns() {
		col, err := t.Require(column, table.KindCategorical)
		if err != nil {
			return nil, err
		}
		values, _ := catalog.Values(column)

		position := make(map[string]int, len(values))
		indicators := make([][]float64, len(values))
		for i, v := range values {
			position[v] = i
			indicators[i] = make([]float64, t.Rows())
		}

		for row := 0; row < t.Rows(); row++ {
			if col.IsNull(row) {
				return nil, &UnknownCategoryError{Column: column, Row: row, Null: true}
			}
			v := col.Str(row)
			i, ok := position[v]
			if !ok {
				return nil, &UnknownCategoryError{Column: column, Value: v, Row: row}
			}
			indicators[i][row] = 1
		}

		for i, v := range values {
			if err := block.AddColumn(IndicatorName(column, v), indicators[i]); err != nil {
				return nil, err
			}
		}
	}
	return block, nil
}
