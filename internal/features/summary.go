package features

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/elliotchance/orderedmap/v2"
)

// DefaultQuantiles are the quantiles reported when none are requested.
var DefaultQuantiles = []float64{0.25, 0.5, 0.75}

// Quantile is a single quantile of a numeric column.
type Quantile struct {
	Q     float64
	Value float64
}

// Stats describes the non-null values of a numeric column. Statistics that are
// undefined for the data, such as the spread of a single value, are NaN.
type Stats struct {
	Count     int
	Mean      float64
	Std       float64
	Min       float64
	Max       float64
	Quantiles []Quantile
}

// nullableFloat encodes NaN and infinities as JSON null.
type nullableFloat float64

func (f nullableFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *nullableFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nullableFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = nullableFloat(v)
	return nil
}

type quantileJSON struct {
	Q     float64       `json:"q"`
	Value nullableFloat `json:"value"`
}

type statsJSON struct {
	Count     int            `json:"count"`
	Mean      nullableFloat  `json:"mean"`
	Std       nullableFloat  `json:"std"`
	Min       nullableFloat  `json:"min"`
	Max       nullableFloat  `json:"max"`
	Quantiles []quantileJSON `json:"quantiles"`
}

// MarshalJSON encodes the stats record, writing undefined values as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	out := statsJSON{
		Count:     s.Count,
		Mean:      nullableFloat(s.Mean),
		Std:       nullableFloat(s.Std),
		Min:       nullableFloat(s.Min),
		Max:       nullableFloat(s.Max),
		Quantiles: make([]quantileJSON, len(s.Quantiles)),
	}
	for i, q := range s.Quantiles {
		out.Quantiles[i] = quantileJSON{Q: q.Q, Value: nullableFloat(q.Value)}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a stats record, reading null as NaN.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var in statsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Stats{
		Count:     in.Count,
		Mean:      float64(in.Mean),
		Std:       float64(in.Std),
		Min:       float64(in.Min),
		Max:       float64(in.Max),
		Quantiles: make([]Quantile, len(in.Quantiles)),
	}
	for i, q := range in.Quantiles {
		s.Quantiles[i] = Quantile{Q: q.Q, Value: float64(q.Value)}
	}
	return nil
}

// NumericSummary maps numeric columns to their statistics, in profiling order.
type NumericSummary struct {
	entries *orderedmap.OrderedMap[string, Stats]
}

// NewNumericSummary returns an empty summary.
func NewNumericSummary() *NumericSummary {
	return &NumericSummary{entries: orderedmap.NewOrderedMap[string, Stats]()}
}

// Set records the statistics of column.
func (s *NumericSummary) Set(column string, stats Stats) {
	s.entries.Set(column, stats)
}

// Get returns the statistics of column.
func (s *NumericSummary) Get(column string) (Stats, bool) {
	return s.entries.Get(column)
}

// Columns returns the summarized columns in order.
func (s *NumericSummary) Columns() []string {
	cols := make([]string, 0, s.entries.Len())
	for el := s.entries.Front(); el != nil; el = el.Next() {
		cols = append(cols, el.Key)
	}
	return cols
}

// Len returns the number of summarized columns.
func (s *NumericSummary) Len() int { return s.entries.Len() }

func (s *NumericSummary) MarshalJSON() ([]byte, error) {
	return marshalOrdered(s.entries)
}

func (s *NumericSummary) UnmarshalJSON(data []byte) error {
	entries := orderedmap.NewOrderedMap[string, Stats]()
	if err := unmarshalOrdered(data, entries); err != nil {
		return fmt.Errorf("decode numeric summary: %w", err)
	}
	s.entries = entries
	return nil
}
