package table

import "fmt"

// SchemaError reports a column that is absent, duplicated or of the wrong kind.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: column %q: %s", e.Column, e.Reason)
}

// ShapeMismatchError reports two collaborating structures whose row counts differ.
type ShapeMismatchError struct {
	Context  string
	Expected int
	Actual   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch in %s: expected %d rows, got %d", e.Context, e.Expected, e.Actual)
}

func missingColumn(name string) *SchemaError {
	return &SchemaError{Column: name, Reason: "column does not exist"}
}
