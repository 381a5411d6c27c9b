package forecast

import (
	"errors"
	"math/rand/v2"
	"sort"
)

// Regressor maps feature rows to a continuous target.
type Regressor interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
}

var (
	errEmptyTraining = errors.New("forecast: empty training set")
	errShapeMismatch = errors.New("forecast: feature and target lengths differ")
	errNotFitted     = errors.New("forecast: model is not fitted")
)

const (
	DefaultEstimators = 100
	DefaultSeed       = 42
)

// BaggedTrees is a random-forest style regressor: each tree is a fully grown
// CART tree with squared-error splits, trained on a bootstrap resample. The
// prediction is the mean over trees. A fixed seed makes fits reproducible.
type BaggedTrees struct {
	Estimators int
	Seed       uint64

	trees    []*treeNode
	features int
}

func NewBaggedTrees() *BaggedTrees {
	return &BaggedTrees{Estimators: DefaultEstimators, Seed: DefaultSeed}
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

func (b *BaggedTrees) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return errEmptyTraining
	}
	if len(x) != len(y) {
		return errShapeMismatch
	}
	features := len(x[0])
	for _, row := range x {
		if len(row) != features {
			return errShapeMismatch
		}
	}

	estimators := b.Estimators
	if estimators <= 0 {
		estimators = DefaultEstimators
	}
	rng := rand.New(rand.NewPCG(b.Seed, b.Seed^0x9e3779b97f4a7c15))

	n := len(x)
	trees := make([]*treeNode, 0, estimators)
	for range estimators {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		trees = append(trees, grow(x, y, sample, features))
	}
	b.trees = trees
	b.features = features
	return nil
}

func (b *BaggedTrees) Predict(x [][]float64) ([]float64, error) {
	if len(b.trees) == 0 {
		return nil, errNotFitted
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != b.features {
			return nil, errShapeMismatch
		}
		var sum float64
		for _, tree := range b.trees {
			sum += tree.predict(row)
		}
		out[i] = sum / float64(len(b.trees))
	}
	return out, nil
}

func (n *treeNode) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func grow(x [][]float64, y []float64, idx []int, features int) *treeNode {
	mean, sse := meanAndSSE(y, idx)
	if len(idx) < 2 || sse == 0 {
		return &treeNode{leaf: true, value: mean}
	}

	bestFeature, bestThreshold, bestScore := -1, 0.0, sse
	for f := 0; f < features; f++ {
		threshold, score, ok := bestSplit(x, y, idx, f)
		if ok && score < bestScore {
			bestFeature, bestThreshold, bestScore = f, threshold, score
		}
	}
	if bestFeature < 0 {
		return &treeNode{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if x[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      grow(x, y, left, features),
		right:     grow(x, y, right, features),
	}
}

// bestSplit scans midpoints between distinct sorted values of feature f and
// returns the threshold with the lowest summed child SSE.
func bestSplit(x [][]float64, y []float64, idx []int, f int) (float64, float64, bool) {
	order := make([]int, len(idx))
	copy(order, idx)
	sort.Slice(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

	var totalSum, totalSq float64
	for _, i := range order {
		totalSum += y[i]
		totalSq += y[i] * y[i]
	}

	var (
		leftSum, leftSq float64
		found           bool
		bestThreshold   float64
		bestScore       float64
	)
	n := len(order)
	for k := 0; k < n-1; k++ {
		v := y[order[k]]
		leftSum += v
		leftSq += v * v
		cur, next := x[order[k]][f], x[order[k+1]][f]
		if cur == next {
			continue
		}
		leftN := float64(k + 1)
		rightN := float64(n - k - 1)
		rightSum := totalSum - leftSum
		rightSq := totalSq - leftSq
		score := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
		if !found || score < bestScore {
			found = true
			bestScore = score
			bestThreshold = (cur + next) / 2
		}
	}
	return bestThreshold, bestScore, found
}

func meanAndSSE(y []float64, idx []int) (float64, float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	mean := sum / float64(len(idx))
	var sse float64
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}
