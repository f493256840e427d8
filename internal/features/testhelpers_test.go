package features

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/crashed/internal/table"
)

func mustTable(t *testing.T, cols ...*table.Column) *table.Table {
	t.Helper()
	tbl, err := table.New(cols...)
	require.NoError(t, err)
	return tbl
}

func catalogOf(pairs ...interface{}) *Catalog {
	c := NewCatalog()
	for i := 0; i < len(pairs); i += 2 {
		c.Set(pairs[i].(string), pairs[i+1].([]string))
	}
	return c
}

func weatherTable(t *testing.T, weather ...string) *table.Table {
	t.Helper()
	speed := make([]float64, len(weather))
	for i := range speed {
		speed[i] = float64(40 + 10*i)
	}
	return mustTable(t,
		table.NewCategorical("weather", weather, nil),
		table.NewNumeric("speed", speed, nil),
	)
}
