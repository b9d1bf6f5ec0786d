// Package training runs the offline pipeline that produces the model
// artifacts: load, split, scale, fit, evaluate, persist, explain.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"diabetesrisk/internal/artifact"
	apperrors "diabetesrisk/internal/errors"
	"diabetesrisk/internal/explain"
	"diabetesrisk/internal/ml"
)

// PlotFile is the default name of the importance chart inside the artifact dir.
const PlotFile = "feature_importance.png"

// Options configures one training run.
type Options struct {
	DatasetPath string
	ArtifactDir string
	TestRatio   float64
	Seed        uint64
	Forest      ml.ForestParams
	// PlotPath is where the importance chart goes; empty skips explanation.
	PlotPath           string
	PermutationRepeats int
	Now                func() time.Time
}

// DefaultOptions mirrors the reference run: an 80/20 split and 200 trees,
// both seeded with 42.
func DefaultOptions() Options {
	return Options{
		DatasetPath:        filepath.Join("dataset", "diabetes.csv"),
		ArtifactDir:        "model",
		TestRatio:          0.2,
		Seed:               42,
		Forest:             ml.DefaultForestParams(),
		PlotPath:           filepath.Join("model", PlotFile),
		PermutationRepeats: 5,
		Now:                time.Now,
	}
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	Accuracy   float64
	TrainRows  int
	EvalRows   int
	Duration   time.Duration
	Importance *explain.Report
	// PlotErr is set when the artifacts were written but the chart was not.
	PlotErr error
}

func fatal(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrTrainingFatal, step, err)
}

// Run executes the pipeline. Artifacts are written only after evaluation
// succeeded; any earlier failure leaves the previous artifacts untouched.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	start := opts.Now()
	runID := uuid.NewString()
	log := slog.With("run_id", runID)

	ds, err := ml.LoadCSVFile(opts.DatasetPath)
	if err != nil {
		return nil, fatal("load dataset", err)
	}
	log.InfoContext(ctx, "dataset loaded", "path", opts.DatasetPath, "rows", ds.Len())

	train, eval, err := ds.Split(opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, fatal("split dataset", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fatal("split dataset", err)
	}

	var scaler ml.StandardScaler
	if err := scaler.Fit(train.X); err != nil {
		return nil, fatal("fit scaler", err)
	}
	Xtrain, err := scaler.TransformMatrix(train.X)
	if err != nil {
		return nil, fatal("scale training set", err)
	}
	Xeval, err := scaler.TransformMatrix(eval.X)
	if err != nil {
		return nil, fatal("scale evaluation set", err)
	}

	forest := ml.NewRandomForest(opts.Forest)
	if err := forest.Fit(Xtrain, train.Y); err != nil {
		return nil, fatal("fit classifier", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fatal("fit classifier", err)
	}
	log.InfoContext(ctx, "classifier fitted", "algorithm", forest.Algorithm(), "trees", len(forest.Trees), "train_rows", train.Len())

	pred, err := ml.PredictAll(forest, Xeval)
	if err != nil {
		return nil, fatal("evaluate", err)
	}
	acc, err := ml.Accuracy(eval.Y, pred)
	if err != nil {
		return nil, fatal("evaluate", err)
	}
	log.InfoContext(ctx, "model evaluated", "accuracy", acc, "eval_rows", eval.Len())

	meta := artifact.Metadata{
		RunID:     runID,
		TrainedAt: opts.Now(),
		Features:  ml.FeatureColumns(),
		Accuracy:  acc,
		TrainRows: train.Len(),
		EvalRows:  eval.Len(),
	}
	if err := artifact.Write(opts.ArtifactDir, meta, &scaler, forest); err != nil {
		return nil, fatal("write artifacts", err)
	}
	log.InfoContext(ctx, "artifacts written", "dir", opts.ArtifactDir)

	report := &Report{
		RunID:     runID,
		Accuracy:  acc,
		TrainRows: train.Len(),
		EvalRows:  eval.Len(),
	}

	if opts.PlotPath != "" {
		imp, err := explain.Permutation(forest, ml.FeatureColumns(), Xeval, eval.Y, opts.PermutationRepeats, opts.Seed)
		if err == nil {
			report.Importance = imp
			err = explain.WritePlot(imp, opts.PlotPath)
		}
		if err != nil {
			report.PlotErr = err
			log.WarnContext(ctx, "feature importance not written", "err", err)
		} else {
			log.InfoContext(ctx, "feature importance written", "path", opts.PlotPath)
		}
	}

	report.Duration = opts.Now().Sub(start)
	return report, nil
}
