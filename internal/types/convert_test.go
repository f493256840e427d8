package types

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCell(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{name: "nil", input: nil, expected: ""},
		{name: "bytes", input: []byte("rain"), expected: "rain"},
		{name: "empty bytes", input: []byte{}, expected: ""},
		{name: "string", input: "clear", expected: "clear"},
		{name: "int64", input: int64(42), expected: "42"},
		{name: "negative int64", input: int64(-7), expected: "-7"},
		{name: "int", input: 100, expected: "100"},
		{name: "int32", input: int32(200), expected: "200"},
		{name: "int16", input: int16(-300), expected: "-300"},
		{name: "int8", input: int8(-8), expected: "-8"},
		{name: "raw bytes", input: sql.RawBytes("fog"), expected: "fog"},
		{name: "uint", input: uint(7), expected: "7"},
		{name: "uint32", input: uint32(70000), expected: "70000"},
		{name: "uint16", input: uint16(65535), expected: "65535"},
		{name: "uint8", input: uint8(255), expected: "255"},
		{name: "uint64", input: uint64(1000), expected: "1000"},
		{name: "float64", input: 42.5, expected: "42.5"},
		{name: "float64 integral", input: 3.0, expected: "3"},
		{name: "float32", input: float32(0.25), expected: "0.25"},
		{name: "true", input: true, expected: "1"},
		{name: "false", input: false, expected: "0"},
		{
			name:     "time",
			input:    time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
			expected: "2024-03-01T12:30:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell, err := ToCell(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cell)
		})
	}
}

func TestToCellUnsupported(t *testing.T) {
	for _, v := range []interface{}{struct{}{}, complex(1, 2), []int{1}} {
		cell, err := ToCell(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported column value type")
		assert.Empty(t, cell)
	}
}
