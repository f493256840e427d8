package training

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/crashed/internal/boost"
	"github.com/dbsmedya/crashed/internal/features"
	"github.com/dbsmedya/crashed/internal/table"
)

// fakeClassifier records what it was fitted on and predicts the first feature.
type fakeClassifier struct {
	X      [][]float64
	y      []float64
	fitErr error
}

func (f *fakeClassifier) Fit(X [][]float64, y []float64) error {
	f.X, f.y = X, y
	return f.fitErr
}

func (f *fakeClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[0]
	}
	return out
}

func (f *fakeClassifier) MarshalBinary() ([]byte, error) { return []byte("fake"), nil }

func matrixOf(t *testing.T, rows int, cols ...interface{}) *features.Matrix {
	t.Helper()
	m := features.NewMatrix(rows)
	for i := 0; i < len(cols); i += 2 {
		require.NoError(t, m.AddColumn(cols[i].(string), cols[i+1].([]float64)))
	}
	return m
}

func TestTrainSplitsTarget(t *testing.T) {
	m := matrixOf(t, 3,
		"weather_rain", []float64{1, 0, 1},
		"crashed", []float64{1, 0, 0},
		"speed", []float64{40, 50, 60},
	)
	clf := &fakeClassifier{}

	model, err := Train(m, "crashed", clf)
	require.NoError(t, err)

	assert.Equal(t, "crashed", model.Target)
	assert.Equal(t, []string{"weather_rain", "speed"}, model.Features)
	assert.Equal(t, [][]float64{{1, 40}, {0, 50}, {1, 60}}, clf.X)
	assert.Equal(t, []float64{1, 0, 0}, clf.y)
}

func TestTrainErrors(t *testing.T) {
	tests := []struct {
		name string
		m    func(t *testing.T) *features.Matrix
		clf  *fakeClassifier
		op   string
	}{
		{
			name: "missing target",
			m:    func(t *testing.T) *features.Matrix { return matrixOf(t, 1, "speed", []float64{1}) },
			clf:  &fakeClassifier{},
			op:   "split",
		},
		{
			name: "non binary target",
			m: func(t *testing.T) *features.Matrix {
				return matrixOf(t, 2, "speed", []float64{1, 2}, "crashed", []float64{0, 3})
			},
			clf: &fakeClassifier{},
			op:  "split",
		},
		{
			name: "no features",
			m:    func(t *testing.T) *features.Matrix { return matrixOf(t, 1, "crashed", []float64{1}) },
			clf:  &fakeClassifier{},
			op:   "split",
		},
		{
			name: "fit failure",
			m: func(t *testing.T) *features.Matrix {
				return matrixOf(t, 1, "speed", []float64{1}, "crashed", []float64{1})
			},
			clf: &fakeClassifier{fitErr: errors.New("boom")},
			op:  "fit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := Train(tt.m(t), "crashed", tt.clf)
			assert.Nil(t, model)

			var trainErr *TrainingError
			require.True(t, errors.As(err, &trainErr), "got %v", err)
			assert.Equal(t, tt.op, trainErr.Op)
		})
	}
}

func TestTrainMissingTargetIsSchemaError(t *testing.T) {
	_, err := Train(matrixOf(t, 1, "speed", []float64{1}), "crashed", &fakeClassifier{})

	var schemaErr *table.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "crashed", schemaErr.Column)
}

func TestTrainNaNResidueFromBoost(t *testing.T) {
	m := matrixOf(t, 2,
		"speed", []float64{40, math.NaN()},
		"crashed", []float64{0, 1},
	)

	_, err := Train(m, "crashed", boost.New(boost.WithRounds(2)))
	var trainErr *TrainingError
	require.True(t, errors.As(err, &trainErr))
	assert.Equal(t, "fit", trainErr.Op)
	assert.ErrorIs(t, err, boost.ErrMissingValue)
}

func TestFittedModelMarshalBinary(t *testing.T) {
	model := &FittedModel{Target: "crashed", Features: []string{"speed"}, Classifier: &fakeClassifier{}}

	data, err := model.MarshalBinary()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, gob.NewDecoder(bytes.NewReader(data)).Decode(&env))
	assert.Equal(t, "crashed", env.Target)
	assert.Equal(t, []string{"speed"}, env.Features)
	assert.Equal(t, []byte("fake"), env.Model)
}

func TestEvaluate(t *testing.T) {
	model := &FittedModel{Target: "crashed", Features: []string{"score"}, Classifier: &fakeClassifier{}}
	m := matrixOf(t, 5,
		"score", []float64{0.9, 0.8, 0.2, 0.6, 0.1},
		"crashed", []float64{1, 0, 0, 1, 1},
	)

	metrics, err := Evaluate(model, m, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 5, metrics.Total)
	assert.Equal(t, 2, metrics.TruePositives)
	assert.Equal(t, 1, metrics.FalsePositives)
	assert.Equal(t, 1, metrics.TrueNegatives)
	assert.Equal(t, 1, metrics.FalseNegatives)
	assert.Equal(t, 3, metrics.Correct)
	assert.InDelta(t, 0.6, metrics.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3.0, metrics.Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, metrics.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, metrics.F1, 1e-12)
}

func TestEvaluateNoPositivePredictions(t *testing.T) {
	model := &FittedModel{Target: "crashed", Features: []string{"score"}, Classifier: &fakeClassifier{}}
	m := matrixOf(t, 2, "score", []float64{0.1, 0.2}, "crashed", []float64{0, 1})

	metrics, err := Evaluate(model, m, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, metrics.Precision)
	assert.Equal(t, 0.0, metrics.Recall)
	assert.Equal(t, 0.0, metrics.F1)
	assert.Equal(t, 0.5, metrics.Accuracy)
}

func TestEvaluateErrors(t *testing.T) {
	model := &FittedModel{Target: "crashed", Features: []string{"a", "b"}, Classifier: &fakeClassifier{}}

	tests := []struct {
		name      string
		rows      int
		cols      []interface{}
		threshold float64
	}{
		{
			name:      "bad threshold",
			rows:      1,
			cols:      []interface{}{"a", []float64{1}, "b", []float64{1}, "crashed", []float64{1}},
			threshold: 1,
		},
		{
			name:      "reordered features",
			rows:      1,
			cols:      []interface{}{"b", []float64{1}, "a", []float64{1}, "crashed", []float64{1}},
			threshold: 0.5,
		},
		{
			name:      "missing feature",
			rows:      1,
			cols:      []interface{}{"a", []float64{1}, "crashed", []float64{1}},
			threshold: 0.5,
		},
		{
			name:      "empty matrix",
			rows:      0,
			cols:      []interface{}{"a", []float64{}, "b", []float64{}, "crashed", []float64{}},
			threshold: 0.5,
		},
		{
			name:      "missing value",
			rows:      1,
			cols:      []interface{}{"a", []float64{1}, "b", []float64{math.NaN()}, "crashed", []float64{1}},
			threshold: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(model, matrixOf(t, tt.rows, tt.cols...), tt.threshold)
			var trainErr *TrainingError
			require.True(t, errors.As(err, &trainErr), "got %v", err)
			assert.Equal(t, "evaluate", trainErr.Op)
		})
	}
}

func TestTrainingErrorMessage(t *testing.T) {
	err := &TrainingError{Op: "fit", Err: errors.New("boom")}
	assert.Equal(t, "training fit: boom", err.Error())
}
