// Package training splits a feature matrix into features and target, hands it
// to a classifier and evaluates the fitted model.
package training

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"

	"github.com/dbsmedya/crashed/internal/features"
	"github.com/dbsmedya/crashed/internal/table"
)

// ErrNonBinaryTarget is returned when the target column holds values other than 0 and 1.
var ErrNonBinaryTarget = errors.New("target must be binary (0 or 1)")

// Classifier is the contract of the fitting library.
type Classifier interface {
	Fit(X [][]float64, y []float64) error
	PredictProba(X [][]float64) []float64
	MarshalBinary() ([]byte, error)
}

// TrainingError wraps any failure while preparing, fitting or evaluating a model.
type TrainingError struct {
	Op  string // split, fit, marshal, evaluate
	Err error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training %s: %v", e.Op, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// FittedModel is a trained classifier together with the matrix layout it was trained on.
type FittedModel struct {
	Target     string
	Features   []string
	Classifier Classifier
}

type envelope struct {
	Target   string
	Features []string
	Model    []byte
}

// MarshalBinary returns the model artifact: the feature layout and the
// classifier's own serialization, gob encoded.
func (m *FittedModel) MarshalBinary() ([]byte, error) {
	blob, err := m.Classifier.MarshalBinary()
	if err != nil {
		return nil, &TrainingError{Op: "marshal", Err: err}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{Target: m.Target, Features: m.Features, Model: blob}); err != nil {
		return nil, &TrainingError{Op: "marshal", Err: err}
	}
	return buf.Bytes(), nil
}

// Train fits clf on every column of m except target, in matrix order, against
// the target column.
func Train(m *features.Matrix, target string, clf Classifier) (*FittedModel, error) {
	X, y, names, err := split(m, target)
	if err != nil {
		return nil, &TrainingError{Op: "split", Err: err}
	}
	if err := clf.Fit(X, y); err != nil {
		return nil, &TrainingError{Op: "fit", Err: err}
	}
	return &FittedModel{Target: target, Features: names, Classifier: clf}, nil
}

func split(m *features.Matrix, target string) ([][]float64, []float64, []string, error) {
	y, ok := m.Column(target)
	if !ok {
		return nil, nil, nil, &table.SchemaError{Column: target, Reason: "target column not in matrix"}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return nil, nil, nil, fmt.Errorf("%w: row %d has %v", ErrNonBinaryTarget, i, label)
		}
	}

	var names []string
	for _, name := range m.Columns() {
		if name != target {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil, nil, errors.New("matrix has no feature columns")
	}

	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j], _ = m.Column(name)
	}
	X := make([][]float64, m.Rows())
	for i := range X {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		X[i] = row
	}
	return X, y, names, nil
}

// Metrics summarizes binary classification quality. Precision, recall and F1
// are 0 when undefined.
type Metrics struct {
	Threshold      float64 `json:"threshold"`
	Total          int     `json:"total"`
	Correct        int     `json:"correct"`
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// Evaluate scores model on m, predicting positive when the probability is at
// least threshold. m must have exactly the feature columns the model was
// trained on, in the same order, plus the target.
func Evaluate(model *FittedModel, m *features.Matrix, threshold float64) (*Metrics, error) {
	if threshold <= 0 || threshold >= 1 || math.IsNaN(threshold) {
		return nil, &TrainingError{Op: "evaluate", Err: fmt.Errorf("threshold %v is outside (0, 1)", threshold)}
	}
	X, y, names, err := split(m, model.Target)
	if err != nil {
		return nil, &TrainingError{Op: "evaluate", Err: err}
	}
	if err := sameLayout(model.Features, names); err != nil {
		return nil, &TrainingError{Op: "evaluate", Err: err}
	}
	if len(X) == 0 {
		return nil, &TrainingError{Op: "evaluate", Err: errors.New("evaluation matrix is empty")}
	}
	for i, row := range X {
		for j, v := range row {
			if math.IsNaN(v) {
				return nil, &TrainingError{
					Op:  "evaluate",
					Err: fmt.Errorf("row %d column %q is missing", i, names[j]),
				}
			}
		}
	}

	metrics := &Metrics{Threshold: threshold, Total: len(y)}
	for i, p := range model.Classifier.PredictProba(X) {
		predicted := p >= threshold
		actual := y[i] == 1
		switch {
		case predicted && actual:
			metrics.TruePositives++
		case predicted && !actual:
			metrics.FalsePositives++
		case !predicted && actual:
			metrics.FalseNegatives++
		default:
			metrics.TrueNegatives++
		}
	}
	metrics.Correct = metrics.TruePositives + metrics.TrueNegatives
	metrics.Accuracy = float64(metrics.Correct) / float64(metrics.Total)
	metrics.Precision = ratio(metrics.TruePositives, metrics.TruePositives+metrics.FalsePositives)
	metrics.Recall = ratio(metrics.TruePositives, metrics.TruePositives+metrics.FalseNegatives)
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	return metrics, nil
}

func sameLayout(trained, got []string) error {
	if len(trained) != len(got) {
		return fmt.Errorf("model expects %d features, matrix has %d", len(trained), len(got))
	}
	for i := range trained {
		if trained[i] != got[i] {
			return &table.SchemaError{
				Column: got[i],
				Reason: fmt.Sprintf("feature %d should be %q", i, trained[i]),
			}
		}
	}
	return nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
