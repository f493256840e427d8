// Package features turns raw tables into the numeric feature matrix used for
// training: it profiles columns, one-hot encodes categorical columns against a
// closed catalog and assembles the final matrix in a stable column order.
//
// All functions here are pure. Persisting their results is the caller's job.
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/dbsmedya/crashed/internal/table"
)

// ProfileCategorical returns, for each requested column, the sorted distinct
// non-null values it contains. Catalog column order follows columns.
func ProfileCategorical(t *table.Table, columns []string) (*Catalog, error) {
	catalog := NewCatalog()
	for _, name := range columns {
		if _, dup := catalog.Values(name); dup {
			return nil, &table.SchemaError{Column: name, Reason: "requested more than once"}
		}
		col, err := t.Require(name, table.KindCategorical)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]struct{})
		values := []string{}
		for i := 0; i < col.Len(); i++ {
			if col.IsNull(i) {
				continue
			}
			v := col.Str(i)
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sort.Strings(values)
		catalog.Set(name, values)
	}
	return catalog, nil
}

// ProfileNumeric returns descriptive statistics for each requested column.
// Nulls are excluded. Std is the sample standard deviation and quantiles are
// linearly interpolated between closest ranks. A nil quantiles slice means
// DefaultQuantiles.
func ProfileNumeric(t *table.Table, columns []string, quantiles []float64) (*NumericSummary, error) {
	if quantiles == nil {
		quantiles = DefaultQuantiles
	}
	for _, q := range quantiles {
		if q < 0 || q > 1 || math.IsNaN(q) {
			return nil, fmt.Errorf("quantile %v is outside [0, 1]", q)
		}
	}

	summary := NewNumericSummary()
	for _, name := range columns {
		if _, dup := summary.Get(name); dup {
			return nil, &table.SchemaError{Column: name, Reason: "requested more than once"}
		}
		col, err := t.Require(name, table.KindNumeric)
		if err != nil {
			return nil, err
		}

		values := make([]float64, 0, col.Len())
		for i := 0; i < col.Len(); i++ {
			if !col.IsNull(i) {
				values = append(values, col.Float(i))
			}
		}
		summary.Set(name, describe(values, quantiles))
	}
	return summary, nil
}

func describe(values []float64, quantiles []float64) Stats {
	nan := math.NaN()
	stats := Stats{
		Count:     len(values),
		Mean:      nan,
		Std:       nan,
		Min:       nan,
		Max:       nan,
		Quantiles: make([]Quantile, len(quantiles)),
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	for i, q := range quantiles {
		stats.Quantiles[i] = Quantile{Q: q, Value: quantile(sorted, q)}
	}

	n := len(sorted)
	if n == 0 {
		return stats
	}
	stats.Min = sorted[0]
	stats.Max = sorted[n-1]

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	stats.Mean = sum / float64(n)

	if n > 1 {
		var ss float64
		for _, v := range sorted {
			d := v - stats.Mean
			ss += d * d
		}
		stats.Std = math.Sqrt(ss / float64(n-1))
	}
	return stats
}

// quantile interpolates linearly between the two closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
