package artifact

import (
	"fmt"

	"diabetesrisk/internal/ml"
)

// Pair is the loaded scaler and classifier. It is read-only after Load and
// safe for concurrent use.
type Pair struct {
	scaler     *ml.StandardScaler
	classifier ml.PersistentClassifier
	meta       Metadata
	algorithm  string
}

// Prediction is the outcome of one serving-path inference.
type Prediction struct {
	Class       int
	Label       string
	Probability float64 // probability of the predicted class
}

// Predict scales vec, classifies it and labels the result.
func (p *Pair) Predict(vec ml.FeatureVector) (*Prediction, error) {
	scaled, err := p.scaler.Transform(vec.Slice())
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}
	proba, err := p.classifier.PredictProba(scaled)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if len(proba) == 0 {
		return nil, fmt.Errorf("classify: no class probabilities")
	}
	// one pass over the classifier; Predict would walk it again
	class := ml.MostProbable(proba)
	label, err := ml.Label(class)
	if err != nil {
		return nil, err
	}
	return &Prediction{Class: class, Label: label, Probability: proba[class]}, nil
}

// Metadata returns a copy of the training-run metadata.
func (p *Pair) Metadata() Metadata {
	m := p.meta
	m.Features = append([]string(nil), p.meta.Features...)
	return m
}

// Algorithm names the classifier strategy.
func (p *Pair) Algorithm() string { return p.algorithm }
