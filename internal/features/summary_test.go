package features

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsJSONNullForUndefined(t *testing.T) {
	s := Stats{
		Count:     1,
		Mean:      5,
		Std:       math.NaN(),
		Min:       5,
		Max:       5,
		Quantiles: []Quantile{{Q: 0.5, Value: 5}},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"count":1,"mean":5,"std":null,"min":5,"max":5,"quantiles":[{"q":0.5,"value":5}]}`,
		string(data))

	var back Stats
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1, back.Count)
	assert.True(t, math.IsNaN(back.Std))
	assert.Equal(t, []Quantile{{Q: 0.5, Value: 5}}, back.Quantiles)
}

func TestNumericSummaryJSONOrder(t *testing.T) {
	s := NewNumericSummary()
	s.Set("speed", Stats{Count: 2, Mean: 1, Std: 0, Min: 1, Max: 1, Quantiles: []Quantile{}})
	s.Set("age", Stats{Count: 0, Mean: math.NaN(), Std: math.NaN(), Min: math.NaN(), Max: math.NaN(), Quantiles: []Quantile{}})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"speed":{"count":2,"mean":1,"std":0,"min":1,"max":1,"quantiles":[]},`+
			`"age":{"count":0,"mean":null,"std":null,"min":null,"max":null,"quantiles":[]}}`,
		string(data))

	back := NewNumericSummary()
	require.NoError(t, json.Unmarshal(data, back))
	assert.Equal(t, []string{"speed", "age"}, back.Columns())
	age, ok := back.Get("age")
	require.True(t, ok)
	assert.True(t, math.IsNaN(age.Mean))
}
