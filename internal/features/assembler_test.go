package features

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/crashed/internal/table"
)

func TestAssembleAppendsNumeric(t *testing.T) {
	tbl := weatherTable(t, "rain", "clear", "rain")
	block, err := Encode(tbl, catalogOf("weather", []string{"rain", "clear"}), true)
	require.NoError(t, err)

	m, err := Assemble(tbl, block, []string{"speed"})
	require.NoError(t, err)

	assert.Equal(t, []string{"weather_rain", "weather_clear", "speed"}, m.Columns())
	assert.Equal(t, 3, m.Rows())
	speed, _ := m.Column("speed")
	assert.Equal(t, []float64{40, 50, 60}, speed)
	assert.Equal(t, []float64{0, 1, 50}, m.Row(1))
}

func TestAssembleCallerOrder(t *testing.T) {
	tbl := mustTable(t,
		table.NewCategorical("weather", []string{"rain"}, nil),
		table.NewNumeric("speed", []float64{40}, nil),
		table.NewNumeric("age", []float64{30}, nil),
	)
	block, err := Encode(tbl, catalogOf("weather", []string{"rain"}), true)
	require.NoError(t, err)

	m, err := Assemble(tbl, block, []string{"age", "speed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weather_rain", "age", "speed"}, m.Columns())
}

func TestAssembleNullBecomesNaN(t *testing.T) {
	tbl := mustTable(t,
		table.NewCategorical("weather", []string{"rain", "rain"}, nil),
		table.NewNumeric("speed", []float64{40, 0}, []bool{false, true}),
	)
	block, err := Encode(tbl, catalogOf("weather", []string{"rain"}), true)
	require.NoError(t, err)

	m, err := Assemble(tbl, block, []string{"speed"})
	require.NoError(t, err)
	speed, _ := m.Column("speed")
	assert.Equal(t, 40.0, speed[0])
	assert.True(t, math.IsNaN(speed[1]))
}

func TestAssembleShapeMismatch(t *testing.T) {
	tbl := weatherTable(t, "rain", "clear", "rain")
	block := NewMatrix(2)
	require.NoError(t, block.AddColumn("weather_rain", []float64{1, 0}))

	_, err := Assemble(tbl, block, []string{"speed"})
	var shapeErr *table.ShapeMismatchError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, 3, shapeErr.Expected)
	assert.Equal(t, 2, shapeErr.Actual)
}

func TestAssembleSchemaErrors(t *testing.T) {
	tbl := mustTable(t,
		table.NewCategorical("weather", []string{"rain"}, nil),
		table.NewNumeric("speed", []float64{40}, nil),
		table.NewNumeric("weather_rain", []float64{1}, nil),
	)
	block, err := Encode(tbl, catalogOf("weather", []string{"rain"}), true)
	require.NoError(t, err)

	tests := []struct {
		name    string
		numeric []string
		column  string
	}{
		{"missing column", []string{"age"}, "age"},
		{"categorical column", []string{"weather"}, "weather"},
		{"collides with indicator", []string{"weather_rain"}, "weather_rain"},
		{"listed twice", []string{"speed", "speed"}, "speed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tbl, block, tt.numeric)
			var schemaErr *table.SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Equal(t, tt.column, schemaErr.Column)
		})
	}
}

func TestAssembleEmptyBlock(t *testing.T) {
	tbl := weatherTable(t, "rain", "clear")
	m, err := Assemble(tbl, NewMatrix(2), []string{"speed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"speed"}, m.Columns())
}
