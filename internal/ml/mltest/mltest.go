// Package mltest builds small synthetic datasets for tests.
package mltest

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"diabetesrisk/internal/ml"
)

// Dataset returns n rows whose label depends mostly on glucose, BMI and age.
func Dataset(n int, seed uint64) *ml.Dataset {
	rng := rand.New(rand.NewPCG(seed, 1))
	ds := &ml.Dataset{X: make([][]float64, n), Y: make([]int, n)}
	for i := 0; i < n; i++ {
		row := []float64{
			float64(rng.IntN(10)),
			90 + rng.NormFloat64()*30,
			70 + rng.NormFloat64()*12,
			20 + rng.NormFloat64()*8,
			80 + rng.NormFloat64()*40,
			31 + rng.NormFloat64()*6,
			0.2 + rng.Float64(),
			float64(21 + rng.IntN(50)),
		}
		score := (row[1]-110)/25 + (row[5]-31)/6 + (row[7]-40)/20 + rng.NormFloat64()*0.3
		if score > 0 {
			ds.Y[i] = 1
		}
		ds.X[i] = row
	}
	return ds
}

// CSV renders ds with the dataset header used for training.
func CSV(ds *ml.Dataset) string {
	var b strings.Builder
	b.WriteString(strings.Join(append(ml.FeatureColumns(), ml.OutcomeColumn), ","))
	b.WriteByte('\n')
	for i, row := range ds.X {
		for _, v := range row {
			fmt.Fprintf(&b, "%g,", v)
		}
		fmt.Fprintf(&b, "%d\n", ds.Y[i])
	}
	return b.String()
}

// SmallForest returns forest parameters that keep tests fast.
func SmallForest() ml.ForestParams {
	p := ml.DefaultForestParams()
	p.NTrees = 15
	return p
}
