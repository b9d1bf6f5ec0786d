package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"diabetesrisk/internal/artifact"
	"diabetesrisk/internal/ml"
)

// NewVerifyCmd creates the 'verify' command that loads the artifacts the way
// the server does.
func NewVerifyCmd() *cobra.Command {
	var dir, sample string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the model artifacts load and agree",
		Long: `Load scaler.json and classifier.json.gz exactly as the server does at
startup and report the training run they came from. With --sample the
loaded pair also classifies one feature vector.`,
		Example: `  train verify --dir model
  train verify --sample "pregnancies=2,glucose=130,bp=70,skin=25,insulin=80,bmi=28.5,dpf=0.5,age=35"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, dir, sample)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "model", "artifact directory")
	cmd.Flags().StringVar(&sample, "sample", "", "comma separated key=value features to classify")
	return cmd
}

func runVerify(cmd *cobra.Command, dir, sample string) error {
	pair, err := artifact.Load(dir)
	if err != nil {
		return err
	}
	meta := pair.Metadata()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Artifacts: %s\n", dir)
	fmt.Fprintf(w, "✓ Run:       %s (%s)\n", meta.RunID, meta.TrainedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "✓ Algorithm: %s\n", pair.Algorithm())
	fmt.Fprintf(w, "✓ Accuracy:  %.4f\n", meta.Accuracy)
	fmt.Fprintf(w, "✓ Features:  %s\n", strings.Join(meta.Features, ", "))

	if sample == "" {
		return nil
	}
	raw, err := parseSample(sample)
	if err != nil {
		return err
	}
	vec, err := ml.Assemble(raw)
	if err != nil {
		return err
	}
	pred, err := pair.Predict(vec)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Sample:    %s (p=%.3f)\n", pred.Label, pred.Probability)
	return nil
}

func parseSample(s string) (map[string]string, error) {
	raw := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("sample entry %q is not key=value", part)
		}
		raw[strings.TrimSpace(k)] = v
	}
	return raw, nil
}
