// Package gbm trains gradient-boosted regression trees with a squared-error
// objective, exact greedy splits and L2-regularized leaf weights.
package gbm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

var (
	// ErrEmpty is returned when there is nothing to train on.
	ErrEmpty = errors.New("gbm: no training rows")

	// ErrShape is returned when rows have inconsistent widths or the target
	// length differs from the number of rows.
	ErrShape = errors.New("gbm: inconsistent training shape")

	// ErrNonFinite is returned for NaN or infinite inputs.
	ErrNonFinite = errors.New("gbm: non-finite input")

	// ErrNoVariance is returned when every target value is identical.
	ErrNoVariance = errors.New("gbm: target has no variance")
)

// Params are the boosting hyperparameters.
type Params struct {
	NumTrees       int
	MaxDepth       int
	LearningRate   float64
	Subsample      float64
	ColSample      float64
	Lambda         float64
	MinChildWeight float64
	Seed           int64
}

// DefaultParams returns the hyperparameters used for budget forecasts.
func DefaultParams() Params {
	return Params{
		NumTrees:       200,
		MaxDepth:       4,
		LearningRate:   0.07,
		Subsample:      0.8,
		ColSample:      0.8,
		Lambda:         1,
		MinChildWeight: 1,
		Seed:           42,
	}
}

func (p Params) validate() error {
	switch {
	case p.NumTrees < 1:
		return fmt.Errorf("gbm: NumTrees must be positive, got %d", p.NumTrees)
	case p.MaxDepth < 1:
		return fmt.Errorf("gbm: MaxDepth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0:
		return fmt.Errorf("gbm: LearningRate must be positive, got %v", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("gbm: Subsample must be in (0, 1], got %v", p.Subsample)
	case p.ColSample <= 0 || p.ColSample > 1:
		return fmt.Errorf("gbm: ColSample must be in (0, 1], got %v", p.ColSample)
	case p.Lambda < 0 || p.MinChildWeight < 0:
		return fmt.Errorf("gbm: Lambda and MinChildWeight cannot be negative")
	}
	return nil
}

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.leaf {
			return n.value
		}
		if x[n.feature] < n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

// Model is a trained ensemble.
type Model struct {
	base         float64
	learningRate float64
	features     int
	trees        []tree
}

// NumTrees returns the number of trees in the ensemble.
func (m *Model) NumTrees() int {
	return len(m.trees)
}

// Predict returns the prediction for one row.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != m.features {
		return 0, fmt.Errorf("%w: expected %d features, got %d", ErrShape, m.features, len(x))
	}
	pred := m.base
	for i := range m.trees {
		pred += m.learningRate * m.trees[i].predict(x)
	}
	return pred, nil
}

// Fit trains a model on rows X and target y. Training is deterministic for a
// given Params.Seed and stops with ctx.Err() when ctx is cancelled.
func Fit(ctx context.Context, X [][]float64, y []float64, p Params) (*Model, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, ErrEmpty
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	features := len(X[0])
	if features == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrShape)
	}
	for i, row := range X {
		if len(row) != features {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrShape, i, len(row), features)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrNonFinite
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, ErrNonFinite
		}
	}
	variance := false
	for _, v := range y[1:] {
		if v != y[0] {
			variance = true
			break
		}
	}
	if !variance {
		return nil, ErrNoVariance
	}

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	m := &Model{base: base, learningRate: p.LearningRate, features: features}
	rng := rand.New(rand.NewSource(p.Seed))

	preds := make([]float64, len(y))
	for i := range preds {
		preds[i] = base
	}
	grad := make([]float64, len(y))
	colCount := max(1, int(p.ColSample*float64(features)))

	for k := 0; k < p.NumTrees; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range grad {
			grad[i] = preds[i] - y[i]
		}

		rows := sampleRows(rng, len(y), p.Subsample)
		cols := rng.Perm(features)[:colCount]
		sort.Ints(cols)

		b := builder{X: X, grad: grad, params: p, cols: cols}
		b.build(rows, 0)
		t := tree{nodes: b.nodes}
		m.trees = append(m.trees, t)

		for i, row := range X {
			preds[i] += p.LearningRate * t.predict(row)
		}
	}
	return m, nil
}

func sampleRows(rng *rand.Rand, n int, fraction float64) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if fraction >= 1 || rng.Float64() < fraction {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

// builder grows one tree. Every hessian is 1 under squared error, so the
// hessian sum of a node is its row count.
type builder struct {
	X      [][]float64
	grad   []float64
	params Params
	cols   []int
	nodes  []node
}

func (b *builder) leafValue(rows []int) float64 {
	g := 0.0
	for _, r := range rows {
		g += b.grad[r]
	}
	return -g / (float64(len(rows)) + b.params.Lambda)
}

func (b *builder) build(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{leaf: true, value: b.leafValue(rows)})
	if depth >= b.params.MaxDepth {
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows)
	if !ok {
		return idx
	}
	var left, right []int
	for _, r := range rows {
		if b.X[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[idx] = node{feature: feature, threshold: threshold, left: l, right: r}
	return idx
}

func (b *builder) bestSplit(rows []int) (int, float64, bool) {
	lambda := b.params.Lambda
	minChild := b.params.MinChildWeight

	total := 0.0
	for _, r := range rows {
		total += b.grad[r]
	}
	n := float64(len(rows))
	parent := total * total / (n + lambda)

	bestGain := 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false
	sorted := make([]int, len(rows))

	for _, f := range b.cols {
		copy(sorted, rows)
		sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		gl := 0.0
		for i := 0; i < len(sorted)-1; i++ {
			gl += b.grad[sorted[i]]
			cur, next := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if cur == next {
				continue
			}
			hl := float64(i + 1)
			hr := n - hl
			if hl < minChild || hr < minChild {
				continue
			}
			gr := total - gl
			gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
