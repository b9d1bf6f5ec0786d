package ml_test

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diabetesrisk/internal/ml"
	"diabetesrisk/internal/ml/mltest"
)

func fitScaled(t *testing.T, ds *ml.Dataset) ([][]float64, *ml.StandardScaler) {
	t.Helper()
	var s ml.StandardScaler
	require.NoError(t, s.Fit(ds.X))
	X, err := s.TransformMatrix(ds.X)
	require.NoError(t, err)
	return X, &s
}

func TestRandomForest_Deterministic(t *testing.T) {
	train, eval, err := mltest.Dataset(300, 7).Split(0.2, 42)
	require.NoError(t, err)
	Xtrain, scaler := fitScaled(t, train)
	Xeval, err := scaler.TransformMatrix(eval.X)
	require.NoError(t, err)

	predict := func() []int {
		f := ml.NewRandomForest(mltest.SmallForest())
		require.NoError(t, f.Fit(Xtrain, train.Y))
		pred, err := ml.PredictAll(f, Xeval)
		require.NoError(t, err)
		return pred
	}

	first := predict()
	assert.Equal(t, first, predict())

	acc, err := ml.Accuracy(eval.Y, first)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.7)
}

func TestRandomForest_ProbaAndImportances(t *testing.T) {
	ds := mltest.Dataset(200, 3)
	X, _ := fitScaled(t, ds)

	f := ml.NewRandomForest(mltest.SmallForest())
	require.NoError(t, f.Fit(X, ds.Y))
	assert.Equal(t, ml.NumFeatures, f.NumFeatures())

	p, err := f.PredictProba(X[0])
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.InDelta(t, 1.0, p[0]+p[1], 1e-9)

	imp := f.FeatureImportances()
	require.Len(t, imp, ml.NumFeatures)
	var sum float64
	for _, v := range imp {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// glucose carries most of the signal in the synthetic data
	assert.Greater(t, imp[1], imp[0])
}

func TestRandomForest_FitErrors(t *testing.T) {
	f := ml.NewRandomForest(mltest.SmallForest())
	assert.ErrorIs(t, f.Fit(nil, nil), ml.ErrNoRows)
	assert.Error(t, f.Fit([][]float64{{1}, {2}}, []int{1}))
	assert.Error(t, f.Fit([][]float64{{1, 2}, {2}}, []int{1, 0}))
	assert.Error(t, f.Fit([][]float64{{1}, {2}}, []int{1, 2}))

	_, err := f.Predict([]float64{1})
	assert.Error(t, err, "unfitted forest")
}

func TestRandomForest_JSONRoundTrip(t *testing.T) {
	ds := mltest.Dataset(120, 11)
	X, _ := fitScaled(t, ds)
	f := ml.NewRandomForest(mltest.SmallForest())
	require.NoError(t, f.Fit(X, ds.Y))

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	restored, err := ml.NewClassifier(ml.AlgorithmRandomForest)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, restored))

	for _, row := range X {
		want, err := f.PredictProba(row)
		require.NoError(t, err)
		got, err := restored.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNewClassifier_Unknown(t *testing.T) {
	_, err := ml.NewClassifier("svm")
	assert.ErrorIs(t, err, ml.ErrUnknownAlgorithm)
	assert.Contains(t, ml.Algorithms(), ml.AlgorithmRandomForest)
}

func TestLoadCSV(t *testing.T) {
	ds := mltest.Dataset(20, 5)
	loaded, err := ml.LoadCSV(strings.NewReader(mltest.CSV(ds)))
	require.NoError(t, err)
	assert.Equal(t, ds.Y, loaded.Y)
	assert.Equal(t, ds.X, loaded.X)
}

func TestLoadCSV_ReorderedColumns(t *testing.T) {
	csv := "Outcome,Age,DiabetesPedigreeFunction,BMI,Insulin,SkinThickness,BloodPressure,Glucose,Pregnancies\n" +
		"1,50,0.6,33.6,0,35,72,148,6\n"
	ds, err := ml.LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{6, 148, 72, 35, 0, 33.6, 0.6, 50}}, ds.X)
	assert.Equal(t, []int{1}, ds.Y)
}

func TestLoadCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "Pregnancies,Glucose,Outcome\n1,2,0\n",
		"no rows":        strings.Join(append(ml.FeatureColumns(), "Outcome"), ",") + "\n",
		"bad number":     strings.Join(append(ml.FeatureColumns(), "Outcome"), ",") + "\n1,x,3,4,5,6,7,8,0\n",
		"bad label":      strings.Join(append(ml.FeatureColumns(), "Outcome"), ",") + "\n1,2,3,4,5,6,7,8,3\n",
	}
	for name, csv := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ml.LoadCSV(strings.NewReader(csv))
			assert.Error(t, err)
		})
	}
}

func TestSplit(t *testing.T) {
	ds := mltest.Dataset(100, 1)
	train, test, err := ds.Split(0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, test.Len())

	again, _, err := ds.Split(0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train.X, again.X)

	_, _, err = ds.Split(1, 42)
	assert.Error(t, err)
}
