package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"diabetesrisk/internal/training"
)

// NewRunCmd creates the 'run' command that trains and persists a model.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train the classifier and write the model artifacts",
		Long: `Load the dataset, hold out an evaluation split, fit the scaler and the
random forest, report accuracy and write scaler.json and classifier.json.gz.
A feature importance chart is written next to them unless --no-plot is set.`,
		Example: `  train run
  train run --data dataset/diabetes.csv --out model --trees 200 --seed 42`,
		Args: cobra.NoArgs,
	}
	flags := newTrainingFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runTraining(cmd, flags.options(cmd))
	}
	return cmd
}

// runTraining executes one pipeline run and prints its report.
func runTraining(cmd *cobra.Command, opts training.Options) error {
	report, err := training.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), opts, report)
	return nil
}

func printReport(w io.Writer, opts training.Options, r *training.Report) {
	fmt.Fprintf(w, "Run:       %s\n", r.RunID)
	fmt.Fprintf(w, "Accuracy:  %.4f (%d train / %d eval rows)\n", r.Accuracy, r.TrainRows, r.EvalRows)
	fmt.Fprintf(w, "Artifacts: %s\n", opts.ArtifactDir)
	if r.Importance != nil {
		fmt.Fprintln(w, "Feature importance:")
		for _, imp := range r.Importance.Ranked() {
			fmt.Fprintf(w, "  %-26s impurity %.4f  permutation %.4f\n", imp.Feature, imp.Impurity, imp.Permutation)
		}
	}
	switch {
	case r.PlotErr != nil:
		fmt.Fprintf(w, "Chart:     not written: %v\n", r.PlotErr)
	case opts.PlotPath != "":
		fmt.Fprintf(w, "Chart:     %s\n", opts.PlotPath)
	}
}

func defaultPlotPath(dir string) string {
	return filepath.Join(dir, training.PlotFile)
}
