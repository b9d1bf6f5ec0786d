package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"diabetesrisk/internal/ml"
)

// DefaultDatasetURL serves the Pima Indians diabetes dataset with the
// expected header.
const DefaultDatasetURL = "https://raw.githubusercontent.com/plotly/datasets/master/diabetes.csv"

const maxDatasetBytes = 32 << 20

// NewFetchCmd creates the 'fetch' command that downloads the training dataset.
func NewFetchCmd() *cobra.Command {
	var url, out string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the training dataset",
		Long: `Download a diabetes CSV, check that it has the eight feature columns and
Outcome with numeric values, and only then replace the local copy.`,
		Example: `  train fetch
  train fetch --url https://example.org/diabetes.csv --out dataset/diabetes.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			rows, err := fetchDataset(ctx, http.DefaultClient, url, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %d rows written to %s\n", rows, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", DefaultDatasetURL, "dataset location")
	cmd.Flags().StringVar(&out, "out", filepath.Join("dataset", "diabetes.csv"), "destination path")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "download timeout")
	return cmd
}

// fetchDataset downloads url, validates it as a dataset and installs it at
// out. A failed download or invalid file leaves out untouched.
func fetchDataset(ctx context.Context, client *http.Client, url, out string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download dataset: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetBytes+1))
	if err != nil {
		return 0, fmt.Errorf("read dataset: %w", err)
	}
	if len(body) > maxDatasetBytes {
		return 0, fmt.Errorf("dataset exceeds %d bytes", maxDatasetBytes)
	}

	ds, err := ml.LoadCSV(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("invalid dataset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return 0, fmt.Errorf("create dataset dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".dataset.*")
	if err != nil {
		return 0, fmt.Errorf("write dataset: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("write dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return 0, fmt.Errorf("install dataset: %w", err)
	}
	return ds.Len(), nil
}
