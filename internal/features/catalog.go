package features

import (
	"encoding/json"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

// Catalog maps each categorical column to the closed, ordered list of values it
// may take. Column order is insertion order and drives indicator column order.
type Catalog struct {
	entries *orderedmap.OrderedMap[string, []string]
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: orderedmap.NewOrderedMap[string, []string]()}
}

// Set records the allowed values for column. A column that is already present
// keeps its position.
func (c *Catalog) Set(column string, values []string) {
	c.entries.Set(column, append([]string{}, values...))
}

// Values returns the allowed values of column in catalog order.
func (c *Catalog) Values(column string) ([]string, bool) {
	values, ok := c.entries.Get(column)
	if !ok {
		return nil, false
	}
	return append([]string{}, values...), true
}

// Columns returns the catalog columns in order.
func (c *Catalog) Columns() []string {
	cols := make([]string, 0, c.entries.Len())
	for el := c.entries.Front(); el != nil; el = el.Next() {
		cols = append(cols, el.Key)
	}
	return cols
}

// Len returns the number of columns in the catalog.
func (c *Catalog) Len() int { return c.entries.Len() }

// Width returns the number of indicator columns the catalog expands to.
func (c *Catalog) Width() int {
	n := 0
	for el := c.entries.Front(); el != nil; el = el.Next() {
		n += len(el.Value)
	}
	return n
}

// MarshalJSON encodes the catalog as {"column": ["value", ...]} in catalog order.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return marshalOrdered(c.entries)
}

// UnmarshalJSON decodes a catalog document, keeping the document's key order.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	entries := orderedmap.NewOrderedMap[string, []string]()
	if err := unmarshalOrdered(data, entries); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	c.entries = entries
	return nil
}

// ParseCatalog decodes a catalog artifact.
func ParseCatalog(text string) (*Catalog, error) {
	c := NewCatalog()
	if err := json.Unmarshal([]byte(text), c); err != nil {
		return nil, err
	}
	return c, nil
}
