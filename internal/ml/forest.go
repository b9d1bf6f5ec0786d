package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// AlgorithmRandomForest is the registry name of RandomForest.
const AlgorithmRandomForest = "random_forest"

func init() {
	RegisterAlgorithm(AlgorithmRandomForest, func() PersistentClassifier { return &RandomForest{} })
}

// ForestParams configures RandomForest.
type ForestParams struct {
	NTrees          int    `json:"n_trees"`
	MaxFeatures     int    `json:"max_features"` // 0 means floor(sqrt(width))
	MaxDepth        int    `json:"max_depth"`    // 0 means unlimited
	MinSamplesSplit int    `json:"min_samples_split"`
	Seed            uint64 `json:"seed"`
}

// DefaultForestParams returns 200 fully grown trees seeded with 42.
func DefaultForestParams() ForestParams {
	return ForestParams{NTrees: 200, MinSamplesSplit: 2, Seed: 42}
}

func (p ForestParams) maxFeatures(width int) int {
	if p.MaxFeatures > 0 {
		return min(p.MaxFeatures, width)
	}
	return max(1, int(math.Sqrt(float64(width))))
}

// RandomForest is a bagged ensemble of DecisionTrees. Its class probability
// is the mean of the tree leaf distributions.
type RandomForest struct {
	Params      ForestParams    `json:"params"`
	Width       int             `json:"n_features"`
	Trees       []*DecisionTree `json:"trees"`
	Importances []float64       `json:"importances"`
}

var (
	_ PersistentClassifier = (*RandomForest)(nil)
	_ ImportanceReporter   = (*RandomForest)(nil)
)

// NewRandomForest returns an unfitted forest.
func NewRandomForest(p ForestParams) *RandomForest {
	return &RandomForest{Params: p}
}

// Algorithm implements PersistentClassifier.
func (f *RandomForest) Algorithm() string { return AlgorithmRandomForest }

// NumFeatures implements PersistentClassifier.
func (f *RandomForest) NumFeatures() int { return f.Width }

// FeatureImportances returns the normalized mean decrease in impurity.
func (f *RandomForest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

// Fit grows the trees concurrently. Each tree gets its own generator seeded
// from the forest seed, so the result does not depend on scheduling.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	width, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}
	if f.Params.NTrees <= 0 {
		return fmt.Errorf("n_trees must be positive, got %d", f.Params.NTrees)
	}

	seeder := rand.New(rand.NewPCG(f.Params.Seed, 0x9e3779b97f4a7c15))
	seeds := make([]uint64, f.Params.NTrees)
	for i := range seeds {
		seeds[i] = seeder.Uint64()
	}

	trees := make([]*DecisionTree, f.Params.NTrees)
	perTree := make([][]float64, f.Params.NTrees)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
			sample := make([]int, len(X))
			for k := range sample {
				sample[k] = rng.IntN(len(X))
			}
			trees[i], perTree[i] = growTree(X, y, sample, f.Params, width, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	importances := make([]float64, width)
	for _, imp := range perTree {
		normalize(imp)
		for j, v := range imp {
			importances[j] += v
		}
	}
	normalize(importances)

	f.Width, f.Trees, f.Importances = width, trees, importances
	return nil
}

// PredictProba returns [P(class 0), P(class 1)].
func (f *RandomForest) PredictProba(x []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("forest is not fitted")
	}
	if len(x) != f.Width {
		return nil, fmt.Errorf("got %d features, forest expects %d", len(x), f.Width)
	}
	var sum [2]float64
	for i, t := range f.Trees {
		p, err := t.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		sum[0] += p[0]
		sum[1] += p[1]
	}
	n := float64(len(f.Trees))
	return []float64{sum[0] / n, sum[1] / n}, nil
}

// Predict returns the most probable class; ties go to class 0.
func (f *RandomForest) Predict(x []float64) (int, error) {
	p, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return MostProbable(p), nil
}

func normalize(v []float64) {
	var s float64
	for _, x := range v {
		s += x
	}
	if s == 0 {
		return
	}
	for i := range v {
		v[i] /= s
	}
}
