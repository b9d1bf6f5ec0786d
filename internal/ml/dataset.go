package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

// OutcomeColumn is the label column of the training CSV.
const OutcomeColumn = "Outcome"

// Dataset is a labeled feature matrix in canonical column order.
type Dataset struct {
	X [][]float64
	Y []int
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.X) }

// LoadCSVFile reads a dataset from path.
func LoadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV reads a headed CSV. Columns are selected by name, so their order in
// the file does not matter; extra columns are ignored.
func LoadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	cols := make([]int, 0, NumFeatures)
	var missing []string
	for _, f := range Features {
		i, ok := pos[f.Column]
		if !ok {
			missing = append(missing, f.Column)
		}
		cols = append(cols, i)
	}
	outcome, ok := pos[OutcomeColumn]
	if !ok {
		missing = append(missing, OutcomeColumn)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset is missing columns: %s", strings.Join(missing, ", "))
	}

	ds := &Dataset{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := make([]float64, NumFeatures)
		for j, c := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("line %d: column %s: invalid number %q", line, Features[j].Column, rec[c])
			}
			row[j] = v
		}
		label, err := strconv.Atoi(strings.TrimSpace(rec[outcome]))
		if err != nil || (label != 0 && label != 1) {
			return nil, fmt.Errorf("line %d: %s must be 0 or 1, got %q", line, OutcomeColumn, rec[outcome])
		}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, label)
	}
	if ds.Len() == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return ds, nil
}

// Split shuffles row indices with seed and holds out ceil(n*testRatio) rows
// for evaluation.
func (d *Dataset) Split(testRatio float64, seed uint64) (train, test *Dataset, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}
	n := d.Len()
	nTest := int(math.Ceil(float64(n) * testRatio))
	if nTest >= n {
		return nil, nil, fmt.Errorf("%d rows are too few to hold out %d for evaluation", n, nTest)
	}
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)

	pick := func(idx []int) *Dataset {
		out := &Dataset{X: make([][]float64, len(idx)), Y: make([]int, len(idx))}
		for k, i := range idx {
			out.X[k] = d.X[i]
			out.Y[k] = d.Y[i]
		}
		return out
	}
	return pick(perm[nTest:]), pick(perm[:nTest]), nil
}
