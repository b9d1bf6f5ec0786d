// Package artifact persists and loads the fitted scaler and classifier.
//
// Each blob carries a versioned header with the canonical feature order and
// the id of the training run that produced it. Load refuses pairs whose
// headers disagree, so a scaler and classifier from different runs never
// serve together.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	apperrors "diabetesrisk/internal/errors"
	"diabetesrisk/internal/ml"
)

const (
	// FormatVersion is bumped on incompatible changes to either blob.
	FormatVersion = 1

	ScalerFile     = "scaler.json"
	ClassifierFile = "classifier.json.gz"

	scalerFormat     = "diabetesrisk.scaler"
	classifierFormat = "diabetesrisk.classifier"
)

// ErrArtifactLoad is wrapped by every Load failure.
var ErrArtifactLoad = apperrors.ErrArtifactLoad

// Metadata describes the training run behind a pair.
type Metadata struct {
	RunID     string    `json:"run_id"`
	TrainedAt time.Time `json:"trained_at"`
	Features  []string  `json:"features"`
	Accuracy  float64   `json:"accuracy"`
	TrainRows int       `json:"train_rows"`
	EvalRows  int       `json:"eval_rows"`
}

type header struct {
	Format   string   `json:"format"`
	Version  int      `json:"version"`
	RunID    string   `json:"run_id"`
	Features []string `json:"features"`
}

type scalerBlob struct {
	header
	Scaler *ml.StandardScaler `json:"scaler"`
}

type classifierBlob struct {
	header
	Algorithm string          `json:"algorithm"`
	TrainedAt time.Time       `json:"trained_at"`
	Accuracy  float64         `json:"accuracy"`
	TrainRows int             `json:"train_rows"`
	EvalRows  int             `json:"eval_rows"`
	Model     json.RawMessage `json:"model"`
}

// Write stores scaler and classifier under dir, replacing earlier versions.
// Both blobs are encoded to temporary files before either is renamed into
// place.
func Write(dir string, meta Metadata, scaler *ml.StandardScaler, clf ml.PersistentClassifier) error {
	if scaler == nil || clf == nil {
		return errors.New("scaler and classifier are required")
	}
	if scaler.NumFeatures() != clf.NumFeatures() {
		return fmt.Errorf("scaler has %d features, classifier has %d", scaler.NumFeatures(), clf.NumFeatures())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	h := header{Version: FormatVersion, RunID: meta.RunID, Features: meta.Features}

	sh := h
	sh.Format = scalerFormat
	scalerTmp, err := writeTemp(dir, ScalerFile, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(scalerBlob{header: sh, Scaler: scaler})
	})
	if err != nil {
		return fmt.Errorf("write scaler: %w", err)
	}
	defer os.Remove(scalerTmp)

	model, err := json.Marshal(clf)
	if err != nil {
		return fmt.Errorf("encode classifier: %w", err)
	}
	ch := h
	ch.Format = classifierFormat
	blob := classifierBlob{
		header:    ch,
		Algorithm: clf.Algorithm(),
		TrainedAt: meta.TrainedAt.UTC(),
		Accuracy:  meta.Accuracy,
		TrainRows: meta.TrainRows,
		EvalRows:  meta.EvalRows,
		Model:     model,
	}
	clfTmp, err := writeTemp(dir, ClassifierFile, func(w io.Writer) error {
		zw := gzip.NewWriter(w)
		if err := json.NewEncoder(zw).Encode(blob); err != nil {
			return err
		}
		return zw.Close()
	})
	if err != nil {
		return fmt.Errorf("write classifier: %w", err)
	}
	defer os.Remove(clfTmp)

	if err := os.Rename(scalerTmp, filepath.Join(dir, ScalerFile)); err != nil {
		return fmt.Errorf("install scaler: %w", err)
	}
	if err := os.Rename(clfTmp, filepath.Join(dir, ClassifierFile)); err != nil {
		return fmt.Errorf("install classifier: %w", err)
	}
	return nil
}

func writeTemp(dir, name string, encode func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Load reads and cross-checks the pair stored under dir.
func Load(dir string) (*Pair, error) {
	sb, err := readScaler(filepath.Join(dir, ScalerFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoad, ScalerFile, err)
	}
	cb, clf, err := readClassifier(filepath.Join(dir, ClassifierFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoad, ClassifierFile, err)
	}

	switch {
	case sb.RunID == "" || sb.RunID != cb.RunID:
		return nil, fmt.Errorf("%w: scaler run %q does not match classifier run %q", ErrArtifactLoad, sb.RunID, cb.RunID)
	case sb.Scaler.NumFeatures() != clf.NumFeatures():
		return nil, fmt.Errorf("%w: scaler has %d features, classifier has %d", ErrArtifactLoad, sb.Scaler.NumFeatures(), clf.NumFeatures())
	case len(sb.Scaler.Scale) != sb.Scaler.NumFeatures():
		return nil, fmt.Errorf("%w: scaler has %d means but %d scales", ErrArtifactLoad, len(sb.Scaler.Mean), len(sb.Scaler.Scale))
	}
	if err := ml.CheckColumns(sb.Features); err != nil {
		return nil, fmt.Errorf("%w: scaler features: %v", ErrArtifactLoad, err)
	}
	if err := ml.CheckColumns(cb.Features); err != nil {
		return nil, fmt.Errorf("%w: classifier features: %v", ErrArtifactLoad, err)
	}
	if sb.Scaler.NumFeatures() != ml.NumFeatures {
		return nil, fmt.Errorf("%w: artifacts were fit on %d features, expected %d", ErrArtifactLoad, sb.Scaler.NumFeatures(), ml.NumFeatures)
	}
	for j, s := range sb.Scaler.Scale {
		if s == 0 {
			return nil, fmt.Errorf("%w: scaler has zero scale for feature %d", ErrArtifactLoad, j)
		}
	}

	return &Pair{
		scaler:     sb.Scaler,
		classifier: clf,
		meta: Metadata{
			RunID:     cb.RunID,
			TrainedAt: cb.TrainedAt,
			Features:  append([]string(nil), cb.Features...),
			Accuracy:  cb.Accuracy,
			TrainRows: cb.TrainRows,
			EvalRows:  cb.EvalRows,
		},
		algorithm: cb.Algorithm,
	}, nil
}

func checkHeader(h header, format string) error {
	if h.Format != format {
		return fmt.Errorf("format %q, expected %q", h.Format, format)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("format version %d, expected %d", h.Version, FormatVersion)
	}
	return nil
}

func readScaler(path string) (*scalerBlob, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sb scalerBlob
	if err := json.Unmarshal(raw, &sb); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := checkHeader(sb.header, scalerFormat); err != nil {
		return nil, err
	}
	if sb.Scaler == nil || sb.Scaler.NumFeatures() == 0 {
		return nil, errors.New("scaler statistics are empty")
	}
	return &sb, nil
}

func readClassifier(path string) (*classifierBlob, ml.PersistentClassifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress: %w", err)
	}
	defer zr.Close()

	var cb classifierBlob
	if err := json.NewDecoder(zr).Decode(&cb); err != nil {
		return nil, nil, fmt.Errorf("decode: %w", err)
	}
	if err := checkHeader(cb.header, classifierFormat); err != nil {
		return nil, nil, err
	}
	clf, err := ml.NewClassifier(cb.Algorithm)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(cb.Model, clf); err != nil {
		return nil, nil, fmt.Errorf("decode %s model: %w", cb.Algorithm, err)
	}
	if clf.NumFeatures() == 0 {
		return nil, nil, errors.New("classifier is not fitted")
	}
	return &cb, clf, nil
}
