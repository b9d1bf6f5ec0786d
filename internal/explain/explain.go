// Package explain computes feature importances for a fitted classifier and
// renders them as a bar chart.
package explain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"diabetesrisk/internal/ml"
)

// Importance is the score of one feature under each method.
type Importance struct {
	Feature     string  `json:"feature"`
	Impurity    float64 `json:"impurity"`
	Permutation float64 `json:"permutation"`
}

// Report holds importances in canonical feature order.
type Report struct {
	Importances []Importance `json:"importances"`
	Baseline    float64      `json:"baseline_accuracy"`
}

// Ranked returns the importances sorted by permutation score, highest first.
func (r *Report) Ranked() []Importance {
	out := append([]Importance(nil), r.Importances...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Permutation > out[j].Permutation })
	return out
}

// Permutation measures the mean accuracy drop on (X, y) when one column at a
// time is shuffled. Impurity scores are filled in when clf reports them.
func Permutation(clf ml.Classifier, names []string, X [][]float64, y []int, repeats int, seed uint64) (*Report, error) {
	if len(X) == 0 {
		return nil, ml.ErrNoRows
	}
	if len(names) != len(X[0]) {
		return nil, fmt.Errorf("%d names for %d features", len(names), len(X[0]))
	}
	if repeats <= 0 {
		repeats = 1
	}
	pred, err := ml.PredictAll(clf, X)
	if err != nil {
		return nil, err
	}
	baseline, err := ml.Accuracy(y, pred)
	if err != nil {
		return nil, err
	}

	var impurity []float64
	if ir, ok := clf.(ml.ImportanceReporter); ok {
		impurity = ir.FeatureImportances()
	}

	rng := rand.New(rand.NewPCG(seed, 2))
	work := make([][]float64, len(X))
	for i := range X {
		work[i] = append([]float64(nil), X[i]...)
	}
	col := make([]float64, len(X))
	drops := make([]float64, repeats)

	report := &Report{Baseline: baseline, Importances: make([]Importance, len(names))}
	for j, name := range names {
		for i := range X {
			col[i] = X[i][j]
		}
		for r := 0; r < repeats; r++ {
			perm := rng.Perm(len(X))
			for i, p := range perm {
				work[i][j] = col[p]
			}
			pred, err := ml.PredictAll(clf, work)
			if err != nil {
				return nil, err
			}
			acc, err := ml.Accuracy(y, pred)
			if err != nil {
				return nil, err
			}
			drops[r] = baseline - acc
		}
		for i := range X {
			work[i][j] = col[i]
		}
		report.Importances[j] = Importance{Feature: name, Permutation: stat.Mean(drops, nil)}
		if j < len(impurity) {
			report.Importances[j].Impurity = impurity[j]
		}
	}
	return report, nil
}

// WritePlot renders the report as a horizontal grouped bar chart (PNG, SVG or
// PDF, chosen by the file extension).
func WritePlot(r *Report, path string) error {
	if r == nil || len(r.Importances) == 0 {
		return errors.New("nothing to plot")
	}
	n := len(r.Importances)
	names := make([]string, n)
	impurity := make(plotter.Values, n)
	permutation := make(plotter.Values, n)
	for i, imp := range r.Importances {
		names[i] = imp.Feature
		impurity[i] = imp.Impurity
		permutation[i] = imp.Permutation
	}
	if floats.Max(permutation) <= 0 && floats.Max(impurity) <= 0 {
		return errors.New("all importances are zero")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Feature importance (baseline accuracy %.3f)", r.Baseline)
	p.X.Label.Text = "importance"

	w := vg.Points(8)
	bars := []struct {
		label  string
		values plotter.Values
	}{
		{"mean decrease in impurity", impurity},
		{"permutation (accuracy drop)", permutation},
	}
	for i, b := range bars {
		chart, err := plotter.NewBarChart(b.values, w)
		if err != nil {
			return fmt.Errorf("bar chart: %w", err)
		}
		chart.Horizontal = true
		chart.LineStyle.Width = vg.Length(0)
		chart.Color = plotutil.Color(i)
		chart.Offset = w * vg.Length(float64(i)-0.5)
		p.Add(chart)
		p.Legend.Add(b.label, chart)
	}
	p.Legend.Top = false
	p.NominalY(names...)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
