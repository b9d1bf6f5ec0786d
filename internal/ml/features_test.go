package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]string {
	return map[string]string{
		"pregnancies": "2",
		"glucose":     "130",
		"bp":          "70",
		"skin":        "25",
		"insulin":     "80",
		"bmi":         "28.5",
		"dpf":         "0.5",
		"age":         "35",
	}
}

func TestAssemble_CanonicalOrder(t *testing.T) {
	vec, err := Assemble(validRaw())
	require.NoError(t, err)
	assert.Equal(t, FeatureVector{2, 130, 70, 25, 80, 28.5, 0.5, 35}, vec)

	bmi, ok := vec.Get("bmi")
	assert.True(t, ok)
	assert.Equal(t, 28.5, bmi)
	assert.Equal(t, []string{
		"Pregnancies", "Glucose", "BloodPressure", "SkinThickness",
		"Insulin", "BMI", "DiabetesPedigreeFunction", "Age",
	}, FeatureColumns())
}

func TestAssemble_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(map[string]string)
		missing    []string
		nonNumeric []string
	}{
		{
			name:    "missing field",
			mutate:  func(m map[string]string) { delete(m, "glucose") },
			missing: []string{"glucose"},
		},
		{
			name:    "blank field",
			mutate:  func(m map[string]string) { m["age"] = "   " },
			missing: []string{"age"},
		},
		{
			name:       "non numeric",
			mutate:     func(m map[string]string) { m["bmi"] = "heavy" },
			nonNumeric: []string{"bmi"},
		},
		{
			name:       "nan and inf",
			mutate:     func(m map[string]string) { m["dpf"] = "NaN"; m["insulin"] = "+Inf" },
			nonNumeric: []string{"insulin", "dpf"},
		},
		{
			name: "several",
			mutate: func(m map[string]string) {
				delete(m, "pregnancies")
				m["bp"] = "1,2"
			},
			missing:    []string{"pregnancies"},
			nonNumeric: []string{"bp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(raw)

			vec, err := Assemble(raw)
			require.Error(t, err)
			assert.Equal(t, FeatureVector{}, vec)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.missing, verr.Missing)
			assert.Equal(t, tt.nonNumeric, verr.NonNumeric)
		})
	}
}

func TestCheckColumns(t *testing.T) {
	assert.NoError(t, CheckColumns(FeatureColumns()))

	swapped := FeatureColumns()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.Error(t, CheckColumns(swapped))
	assert.Error(t, CheckColumns(FeatureColumns()[:7]))
}
