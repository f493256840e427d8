// Package boost implements a binary gradient-boosted tree classifier.
//
// Each round fits a depth-limited regression tree to the gradient and hessian of
// the logistic loss and adds it, scaled by the learning rate, to the model's
// log-odds. Leaf weights are Newton steps with L2 regularization.
package boost

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrEmptyInput is returned when Fit is called without rows or features.
	ErrEmptyInput = errors.New("boost: empty training input")
	// ErrMissingValue is returned when a feature value is NaN.
	ErrMissingValue = errors.New("boost: missing feature value")
	// ErrInvalidLabel is returned for labels other than 0 and 1.
	ErrInvalidLabel = errors.New("boost: labels must be 0 or 1")
)

const (
	minGain     = 1e-12
	probEpsilon = 1e-6
)

// Node is a regression tree node. Leaves carry a weight already scaled by the
// learning rate; internal nodes send x[Feature] < Threshold left.
type Node struct {
	Leaf      bool
	Weight    float64
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
}

func (n *Node) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] < n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Weight
}

// Depth returns the depth of the subtree rooted at n. A leaf has depth 0.
func (n *Node) Depth() int {
	if n.Leaf {
		return 0
	}
	l, r := n.Left.Depth(), n.Right.Depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

// Classifier is a gradient-boosted tree ensemble for binary labels.
type Classifier struct {
	Rounds         int
	MaxDepth       int
	LearningRate   float64
	Lambda         float64 // L2 regularization on leaf weights
	MinChildWeight float64 // minimum hessian sum in each child of a split

	BaseScore   float64 // prior log-odds
	NumFeatures int
	Trees       []*Node
}

// Option configures a Classifier.
type Option func(*Classifier)

func WithRounds(n int) Option             { return func(c *Classifier) { c.Rounds = n } }
func WithMaxDepth(d int) Option           { return func(c *Classifier) { c.MaxDepth = d } }
func WithLearningRate(eta float64) Option { return func(c *Classifier) { c.LearningRate = eta } }
func WithLambda(l float64) Option         { return func(c *Classifier) { c.Lambda = l } }
func WithMinChildWeight(w float64) Option {
	return func(c *Classifier) { c.MinChildWeight = w }
}

// New returns a classifier with default parameters overridden by opts.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		Rounds:         100,
		MaxDepth:       3,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fit trains the ensemble on X (n rows of p features) and y (n labels of 0 or 1).
// Any previous fit is discarded.
func (c *Classifier) Fit(X [][]float64, y []float64) error {
	if err := c.checkParams(); err != nil {
		return err
	}
	if len(X) == 0 || len(X[0]) == 0 {
		return ErrEmptyInput
	}
	if len(y) != len(X) {
		return fmt.Errorf("boost: %d rows but %d labels", len(X), len(y))
	}
	p := len(X[0])
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("boost: row %d has %d features, expected %d", i, len(row), p)
		}
		for j, v := range row {
			if math.IsNaN(v) {
				return fmt.Errorf("%w: row %d feature %d", ErrMissingValue, i, j)
			}
		}
	}
	var positives float64
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("%w: row %d has label %v", ErrInvalidLabel, i, label)
		}
		positives += label
	}

	prior := clamp(positives/float64(len(y)), probEpsilon, 1-probEpsilon)
	c.BaseScore = math.Log(prior / (1 - prior))
	c.NumFeatures = p
	c.Trees = make([]*Node, 0, c.Rounds)

	n := len(X)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = c.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	idx := make([]int, n)

	for round := 0; round < c.Rounds; round++ {
		for i := range margin {
			prob := sigmoid(margin[i])
			grad[i] = prob - y[i]
			hess[i] = prob * (1 - prob)
			idx[i] = i
		}
		b := &builder{c: c, X: X, grad: grad, hess: hess}
		tree := b.build(idx, 0)
		c.Trees = append(c.Trees, tree)
		for i := range margin {
			margin[i] += tree.predict(X[i])
		}
	}
	return nil
}

func (c *Classifier) checkParams() error {
	switch {
	case c.Rounds <= 0:
		return fmt.Errorf("boost: rounds must be positive, got %d", c.Rounds)
	case c.MaxDepth <= 0:
		return fmt.Errorf("boost: max depth must be positive, got %d", c.MaxDepth)
	case c.LearningRate <= 0:
		return fmt.Errorf("boost: learning rate must be positive, got %v", c.LearningRate)
	case c.Lambda < 0:
		return fmt.Errorf("boost: lambda cannot be negative, got %v", c.Lambda)
	case c.MinChildWeight < 0:
		return fmt.Errorf("boost: min child weight cannot be negative, got %v", c.MinChildWeight)
	}
	return nil
}

// PredictProba returns the probability of the positive class for each row.
func (c *Classifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		margin := c.BaseScore
		for _, tree := range c.Trees {
			margin += tree.predict(row)
		}
		out[i] = sigmoid(margin)
	}
	return out
}

// model is the gob wire form of a Classifier.
type model struct {
	Rounds         int
	MaxDepth       int
	LearningRate   float64
	Lambda         float64
	MinChildWeight float64
	BaseScore      float64
	NumFeatures    int
	Trees          []*Node
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (c *Classifier) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(model{
		Rounds:         c.Rounds,
		MaxDepth:       c.MaxDepth,
		LearningRate:   c.LearningRate,
		Lambda:         c.Lambda,
		MinChildWeight: c.MinChildWeight,
		BaseScore:      c.BaseScore,
		NumFeatures:    c.NumFeatures,
		Trees:          c.Trees,
	})
	if err != nil {
		return nil, fmt.Errorf("boost: encode model: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Classifier) UnmarshalBinary(data []byte) error {
	var m model
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return fmt.Errorf("boost: decode model: %w", err)
	}
	*c = Classifier{
		Rounds:         m.Rounds,
		MaxDepth:       m.MaxDepth,
		LearningRate:   m.LearningRate,
		Lambda:         m.Lambda,
		MinChildWeight: m.MinChildWeight,
		BaseScore:      m.BaseScore,
		NumFeatures:    m.NumFeatures,
		Trees:          m.Trees,
	}
	return nil
}

type builder struct {
	c    *Classifier
	X    [][]float64
	grad []float64
	hess []float64
}

func (b *builder) leaf(G, H float64) *Node {
	return &Node{Leaf: true, Weight: -G / (H + b.c.Lambda) * b.c.LearningRate}
}

func (b *builder) build(idx []int, depth int) *Node {
	var G, H float64
	for _, i := range idx {
		G += b.grad[i]
		H += b.hess[i]
	}
	if depth >= b.c.MaxDepth || len(idx) < 2 {
		return b.leaf(G, H)
	}

	lambda := b.c.Lambda
	parent := G * G / (H + lambda)
	bestGain := minGain
	bestFeature := -1
	var bestThreshold float64

	sorted := make([]int, len(idx))
	for f := 0; f < len(b.X[idx[0]]); f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, z int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[z]][f]
		})

		var GL, HL float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			GL += b.grad[i]
			HL += b.hess[i]
			cur, next := b.X[i][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < b.c.MinChildWeight || HR < b.c.MinChildWeight {
				continue
			}
			gain := GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold <= cur {
					bestThreshold = next
				}
			}
		}
	}

	if bestFeature < 0 {
		return b.leaf(G, H)
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][bestFeature] < bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &Node{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      b.build(left, depth+1),
		Right:     b.build(right, depth+1),
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
