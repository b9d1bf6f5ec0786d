package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"diabetesrisk/internal/artifact"
	"diabetesrisk/internal/config"
	apperrors "diabetesrisk/internal/errors"
	"diabetesrisk/internal/ml"
	"diabetesrisk/internal/model"
	"diabetesrisk/internal/repository"
)

const historyCacheTTL = 5 * time.Minute

// ErrRecording wraps every failed history write.
var ErrRecording = apperrors.ErrRecording

// Predictor is the loaded model. *artifact.Pair implements it.
type Predictor interface {
	Predict(vec ml.FeatureVector) (*artifact.Prediction, error)
	Metadata() artifact.Metadata
}

// HistoryCache holds each user's history list under a versioned key.
// *cache.Client implements it.
type HistoryCache interface {
	Version(ctx context.Context, key string) (int64, bool)
	Incr(ctx context.Context, key string) error
	GetJSON(ctx context.Context, key string, v any) bool
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// PredictionResult is what the serving path returns for one request.
type PredictionResult struct {
	Label       string
	Probability float64
	Features    ml.FeatureVector
	// Recorded is false only under the best-effort policy when the history
	// write failed.
	Recorded    bool
	RunID       string
	PredictedAt time.Time
}

// PredictionService runs inference and keeps each user's history.
type PredictionService interface {
	Predict(ctx context.Context, userID uint, raw map[string]string) (*PredictionResult, error)
	History(ctx context.Context, userID uint) ([]model.PredictionRecord, error)
	ModelInfo() artifact.Metadata
}

type predictionService struct {
	model   Predictor
	history repository.HistoryRepository
	cache   HistoryCache
	policy  string
	now     func() time.Time
}

// PredictionOption customizes a PredictionService.
type PredictionOption func(*predictionService)

// WithClock overrides the timestamp source for history rows.
func WithClock(now func() time.Time) PredictionOption {
	return func(s *predictionService) { s.now = now }
}

// WithRecordingPolicy selects config.RecordingAtomic or config.RecordingBestEffort.
func WithRecordingPolicy(policy string) PredictionOption {
	return func(s *predictionService) { s.policy = policy }
}

// NewPredictionService wires the loaded model to the history store. The
// default policy is atomic.
func NewPredictionService(m Predictor, history repository.HistoryRepository, cache HistoryCache, opts ...PredictionOption) PredictionService {
	s := &predictionService{
		model:   m,
		history: history,
		cache:   cache,
		policy:  config.RecordingAtomic,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// A list read before an insert may be written back after it. Every insert
// bumps the user's version, so such a write lands on a key no reader uses.
func historyVersionKey(userID uint) string {
	return fmt.Sprintf("history:version:%d", userID)
}

func historyCacheKey(userID uint, version int64) string {
	return fmt.Sprintf("history:user:%d:v%d", userID, version)
}

func (s *predictionService) Predict(ctx context.Context, userID uint, raw map[string]string) (*PredictionResult, error) {
	vec, err := ml.Assemble(raw)
	if err != nil {
		return nil, err
	}

	pred, err := s.model.Predict(vec)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	res := &PredictionResult{
		Label:       pred.Label,
		Probability: pred.Probability,
		Features:    vec,
		RunID:       s.model.Metadata().RunID,
		PredictedAt: s.now().UTC(),
	}

	rec := newRecord(userID, res)
	if err := s.history.Create(ctx, rec); err != nil {
		err = fmt.Errorf("%w: %v", ErrRecording, err)
		if s.policy != config.RecordingBestEffort {
			return nil, err
		}
		slog.WarnContext(ctx, "prediction served without history", "user_id", userID, "err", err)
		return res, nil
	}
	res.Recorded = true
	if s.cache != nil {
		_ = s.cache.Incr(ctx, historyVersionKey(userID))
	}

	slog.InfoContext(ctx, "prediction served", "user_id", userID, "result", res.Label, "history_id", rec.ID)
	return res, nil
}

func newRecord(userID uint, res *PredictionResult) *model.PredictionRecord {
	v := res.Features
	return &model.PredictionRecord{
		UserID:      userID,
		Result:      res.Label,
		Pregnancies: v[0],
		Glucose:     v[1],
		BP:          v[2],
		Skin:        v[3],
		Insulin:     v[4],
		BMI:         v[5],
		DPF:         v[6],
		Age:         v[7],
		PredictedAt: res.PredictedAt,
	}
}

// History returns the user's records newest first.
func (s *predictionService) History(ctx context.Context, userID uint) ([]model.PredictionRecord, error) {
	if s.cache == nil {
		return s.history.ListByUser(ctx, userID)
	}
	// the version is read before the list so a concurrent insert invalidates it
	version, ok := s.cache.Version(ctx, historyVersionKey(userID))
	if !ok {
		return s.history.ListByUser(ctx, userID)
	}
	key := historyCacheKey(userID, version)

	var recs []model.PredictionRecord
	if s.cache.GetJSON(ctx, key, &recs) {
		return recs, nil
	}
	recs, err := s.history.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJSON(ctx, key, recs, historyCacheTTL)
	return recs, nil
}

func (s *predictionService) ModelInfo() artifact.Metadata {
	return s.model.Metadata()
}
