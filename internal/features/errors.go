package features

import (
	"errors"
	"fmt"
)

// ErrLenientEncodingUnsupported is returned when Encode is asked for non-strict mode.
var ErrLenientEncodingUnsupported = errors.New("non-strict encoding is not supported")

// UnknownCategoryError reports a value that is not in the catalog for its column.
type UnknownCategoryError struct {
	Column string
	Value  string
	Row    int
	Null   bool // the row has no value at all
}

func (e *UnknownCategoryError) Error() string {
	if e.Null {
		return fmt.Sprintf("unknown category in column %q at row %d: value is null", e.Column, e.Row)
	}
	return fmt.Sprintf("unknown category %q in column %q at row %d", e.Value, e.Column, e.Row)
}
