package ml

import (
	"fmt"

	apperrors "diabetesrisk/internal/errors"
)

// Result labels.
const (
	LabelDiabetic    = "Diabetic"
	LabelNonDiabetic = "Non-Diabetic"
)

// ErrUnexpectedClass is returned for classifier outputs outside {0, 1}.
var ErrUnexpectedClass = apperrors.ErrUnexpectedClass

// Label maps a class to its result label.
func Label(class int) (string, error) {
	switch class {
	case 1:
		return LabelDiabetic, nil
	case 0:
		return LabelNonDiabetic, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnexpectedClass, class)
	}
}

// Accuracy is the fraction of predictions equal to the truth.
func Accuracy(truth, pred []int) (float64, error) {
	if len(truth) != len(pred) {
		return 0, fmt.Errorf("%d labels but %d predictions", len(truth), len(pred))
	}
	if len(truth) == 0 {
		return 0, ErrNoRows
	}
	hits := 0
	for i := range truth {
		if truth[i] == pred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(truth)), nil
}

// PredictAll runs c over every row of X.
func PredictAll(c Classifier, X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, row := range X {
		p, err := c.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}
