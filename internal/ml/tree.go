package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

const leaf = -1

type treeNode struct {
	Feature   int        `json:"f"`
	Threshold float64    `json:"t,omitempty"`
	Left      int        `json:"l,omitempty"`
	Right     int        `json:"r,omitempty"`
	Proba     [2]float64 `json:"p"`
}

// DecisionTree is a binary CART tree grown on gini impurity. Samples with
// x[Feature] <= Threshold go left.
type DecisionTree struct {
	Nodes []treeNode `json:"nodes"`
}

// PredictProba walks the tree and returns the leaf class distribution.
func (t *DecisionTree) PredictProba(x []float64) ([2]float64, error) {
	if len(t.Nodes) == 0 {
		return [2]float64{}, errors.New("tree is empty")
	}
	i := 0
	for steps := 0; ; steps++ {
		if steps > len(t.Nodes) {
			return [2]float64{}, errors.New("tree contains a cycle")
		}
		n := &t.Nodes[i]
		if n.Feature == leaf {
			return n.Proba, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return [2]float64{}, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, len(x))
		}
		next := n.Right
		if x[n.Feature] <= n.Threshold {
			next = n.Left
		}
		if next <= i || next >= len(t.Nodes) {
			return [2]float64{}, fmt.Errorf("node %d has invalid child %d", i, next)
		}
		i = next
	}
}

type treeBuilder struct {
	X           [][]float64
	y           []int
	maxFeatures int
	maxDepth    int
	minSplit    int
	rng         *rand.Rand
	total       float64

	nodes      []treeNode
	importance []float64
}

func growTree(X [][]float64, y []int, sample []int, p ForestParams, width int, rng *rand.Rand) (*DecisionTree, []float64) {
	b := &treeBuilder{
		X:           X,
		y:           y,
		maxFeatures: p.maxFeatures(width),
		maxDepth:    p.MaxDepth,
		minSplit:    max(p.MinSamplesSplit, 2),
		rng:         rng,
		total:       float64(len(sample)),
		importance:  make([]float64, width),
	}
	b.build(sample, 0)
	return &DecisionTree{Nodes: b.nodes}, b.importance
}

func classCounts(y []int, idx []int) (c0, c1 float64) {
	for _, i := range idx {
		if y[i] == 1 {
			c1++
		} else {
			c0++
		}
	}
	return c0, c1
}

func gini(c0, c1 float64) float64 {
	n := c0 + c1
	if n == 0 {
		return 0
	}
	p0, p1 := c0/n, c1/n
	return 1 - p0*p0 - p1*p1
}

func (b *treeBuilder) build(idx []int, depth int) int {
	c0, c1 := classCounts(b.y, idx)
	n := c0 + c1
	self := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: leaf, Proba: [2]float64{c0 / n, c1 / n}})

	if c0 == 0 || c1 == 0 || len(idx) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return self
	}

	feature, threshold, childImpurity, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.importance[feature] += n / b.total * (gini(c0, c1) - childImpurity)

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self].Feature = feature
	b.nodes[self].Threshold = threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}

// bestSplit draws features in random order and keeps searching past
// maxFeatures until at least one valid split has been found.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold, impurity float64, ok bool) {
	width := len(b.X[0])
	order := b.rng.Perm(width)
	impurity = math.Inf(1)
	sorted := make([]int, len(idx))
	n := float64(len(idx))

	for visited, f := range order {
		if visited >= b.maxFeatures && ok {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		total0, total1 := classCounts(b.y, sorted)
		var l0, l1 float64
		for k := 0; k < len(sorted)-1; k++ {
			if b.y[sorted[k]] == 1 {
				l1++
			} else {
				l0++
			}
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl := l0 + l1
			nr := n - nl
			w := (nl*gini(l0, l1) + nr*gini(total0-l0, total1-l1)) / n
			if w < impurity {
				t := lo + (hi-lo)/2
				if t >= hi {
					t = lo
				}
				feature, threshold, impurity, ok = f, t, w, true
			}
		}
	}
	return feature, threshold, impurity, ok
}
