package ml

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	apperrors "diabetesrisk/internal/errors"
)

// Feature describes one clinical measurement used by the model.
type Feature struct {
	// Key is the request/form field name.
	Key string
	// Column is the dataset column the scaler and classifier were trained on.
	Column string
}

// Features is the canonical feature order. Training, the artifacts and
// serving all use this order.
var Features = []Feature{
	{Key: "pregnancies", Column: "Pregnancies"},
	{Key: "glucose", Column: "Glucose"},
	{Key: "bp", Column: "BloodPressure"},
	{Key: "skin", Column: "SkinThickness"},
	{Key: "insulin", Column: "Insulin"},
	{Key: "bmi", Column: "BMI"},
	{Key: "dpf", Column: "DiabetesPedigreeFunction"},
	{Key: "age", Column: "Age"},
}

// NumFeatures is the width of a FeatureVector.
const NumFeatures = 8

// FeatureColumns returns the dataset column names in canonical order.
func FeatureColumns() []string {
	cols := make([]string, len(Features))
	for i, f := range Features {
		cols[i] = f.Column
	}
	return cols
}

// FeatureVector holds the eight measurements in canonical order.
type FeatureVector [NumFeatures]float64

// Slice returns a copy of the vector as a slice.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Get returns the value for a request key.
func (v FeatureVector) Get(key string) (float64, bool) {
	for i, f := range Features {
		if f.Key == key {
			return v[i], true
		}
	}
	return 0, false
}

// ValidationError reports the fields that were missing or not numeric.
type ValidationError struct {
	Missing    []string
	NonNumeric []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.NonNumeric) > 0 {
		parts = append(parts, "not numeric: "+strings.Join(e.NonNumeric, ", "))
	}
	return "invalid features (" + strings.Join(parts, "; ") + ")"
}

// Is reports ValidationError as apperrors.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == apperrors.ErrValidation
}

// Fields returns every rejected field, sorted.
func (e *ValidationError) Fields() []string {
	out := append(append([]string{}, e.Missing...), e.NonNumeric...)
	sort.Strings(out)
	return out
}

// Assemble parses raw request values into a FeatureVector.
func Assemble(raw map[string]string) (FeatureVector, error) {
	var (
		vec     FeatureVector
		invalid ValidationError
	)
	for i, f := range Features {
		s, ok := raw[f.Key]
		s = strings.TrimSpace(s)
		if !ok || s == "" {
			invalid.Missing = append(invalid.Missing, f.Key)
			continue
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
			invalid.NonNumeric = append(invalid.NonNumeric, f.Key)
			continue
		}
		vec[i] = x
	}
	if len(invalid.Missing) > 0 || len(invalid.NonNumeric) > 0 {
		return FeatureVector{}, &invalid
	}
	return vec, nil
}

// CheckColumns verifies that cols is exactly the canonical column order.
func CheckColumns(cols []string) error {
	if len(cols) != NumFeatures {
		return fmt.Errorf("expected %d features, got %d", NumFeatures, len(cols))
	}
	for i, c := range cols {
		if c != Features[i].Column {
			return fmt.Errorf("feature %d is %q, expected %q", i, c, Features[i].Column)
		}
	}
	return nil
}
