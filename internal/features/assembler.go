package features

import (
	"github.com/dbsmedya/crashed/internal/table"
)

// Assemble concatenates the encoded block with the numeric passthrough columns
// of t. The result holds the block's columns first, then numeric in the given
// order. Values are copied verbatim; a null becomes NaN.
func Assemble(t *table.Table, block *Matrix, numeric []string) (*Matrix, error) {
	if block.Rows() != t.Rows() {
		return nil, &table.ShapeMismatchError{
			Context:  "matrix assembly",
			Expected: t.Rows(),
			Actual:   block.Rows(),
		}
	}

	out := NewMatrix(t.Rows())
	for _, name := range block.Columns() {
		values, _ := block.Column(name)
		if err := out.AddColumn(name, values); err != nil {
			return nil, err
		}
	}

	for _, name := range numeric {
		col, err := t.Require(name, table.KindNumeric)
		if err != nil {
			return nil, err
		}
		if _, exists := out.Column(name); exists {
			return nil, &table.SchemaError{Column: name, Reason: "collides with an existing matrix column"}
		}
		if err := out.AddColumn(name, col.Floats()); err != nil {
			return nil, err
		}
	}
	return out, nil
}
