package ml

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Classifier is the capability set the pipelines depend on.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(x []float64) (int, error)
	PredictProba(x []float64) ([]float64, error)
}

// PersistentClassifier is a Classifier that can be stored in an artifact.
// Implementations must round-trip through encoding/json.
type PersistentClassifier interface {
	Classifier
	Algorithm() string
	NumFeatures() int
}

// MostProbable returns the index of the largest probability. Ties go to the
// lower class.
func MostProbable(proba []float64) int {
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return best
}

// ImportanceReporter is implemented by classifiers that expose per-feature
// importances after fitting.
type ImportanceReporter interface {
	FeatureImportances() []float64
}

// ErrUnknownAlgorithm is returned by NewClassifier for unregistered names.
var ErrUnknownAlgorithm = errors.New("unknown classifier algorithm")

var (
	registryMu sync.RWMutex
	registry   = map[string]func() PersistentClassifier{}
)

// RegisterAlgorithm makes a classifier constructor available to artifact
// decoding under name.
func RegisterAlgorithm(name string, factory func() PersistentClassifier) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("ml: algorithm registered twice: " + name)
	}
	registry[name] = factory
}

// NewClassifier returns an empty classifier for a registered algorithm.
func NewClassifier(name string) (PersistentClassifier, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return factory(), nil
}

// Algorithms lists registered algorithm names.
func Algorithms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func checkTrainingSet(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, ErrNoRows
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%d feature rows but %d labels", len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, errors.New("rows have no features")
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
		if y[i] != 0 && y[i] != 1 {
			return 0, fmt.Errorf("row %d has label %d, expected 0 or 1", i, y[i])
		}
	}
	return width, nil
}
