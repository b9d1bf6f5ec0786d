// Package cli implements the train command tree.
package cli

import (
	"github.com/spf13/cobra"

	"diabetesrisk/internal/training"
)

// trainingFlags binds the options shared by run and schedule.
type trainingFlags struct {
	opts   training.Options
	noPlot bool
}

func newTrainingFlags(cmd *cobra.Command) *trainingFlags {
	f := &trainingFlags{opts: training.DefaultOptions()}
	fs := cmd.Flags()
	fs.StringVar(&f.opts.DatasetPath, "data", f.opts.DatasetPath, "CSV dataset with the eight feature columns and Outcome")
	fs.StringVar(&f.opts.ArtifactDir, "out", f.opts.ArtifactDir, "directory receiving the scaler and classifier")
	fs.Float64Var(&f.opts.TestRatio, "test-ratio", f.opts.TestRatio, "fraction of rows held out for evaluation")
	fs.Uint64Var(&f.opts.Seed, "seed", f.opts.Seed, "seed for the split and the forest")
	fs.IntVar(&f.opts.Forest.NTrees, "trees", f.opts.Forest.NTrees, "number of trees")
	fs.IntVar(&f.opts.Forest.MaxDepth, "max-depth", f.opts.Forest.MaxDepth, "maximum tree depth, 0 for unlimited")
	fs.IntVar(&f.opts.Forest.MaxFeatures, "max-features", f.opts.Forest.MaxFeatures, "features tried per split, 0 for sqrt(n)")
	fs.StringVar(&f.opts.PlotPath, "plot", f.opts.PlotPath, "feature importance chart path")
	fs.BoolVar(&f.noPlot, "no-plot", false, "skip the feature importance chart")
	fs.IntVar(&f.opts.PermutationRepeats, "repeats", f.opts.PermutationRepeats, "permutation importance repeats")
	return f
}

// options resolves the flags into training options. The forest seed follows
// the split seed.
func (f *trainingFlags) options(cmd *cobra.Command) training.Options {
	opts := f.opts
	opts.Forest.Seed = opts.Seed
	if f.noPlot {
		opts.PlotPath = ""
	} else if cmd.Flags().Changed("out") && !cmd.Flags().Changed("plot") {
		opts.PlotPath = defaultPlotPath(opts.ArtifactDir)
	}
	return opts
}
