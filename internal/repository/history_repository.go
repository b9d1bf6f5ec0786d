package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"diabetesrisk/internal/model"
)

// HistoryRepository stores and lists prediction records.
type HistoryRepository interface {
	Create(ctx context.Context, rec *model.PredictionRecord) error
	ListByUser(ctx context.Context, userID uint) ([]model.PredictionRecord, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository builds a GORM-backed repository.
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Create(ctx context.Context, rec *model.PredictionRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListByUser returns the user's records newest first; equal timestamps fall
// back to insertion order, newest first.
func (r *historyRepository) ListByUser(ctx context.Context, userID uint) ([]model.PredictionRecord, error) {
	recs := []model.PredictionRecord{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("predicted_at DESC").
		Order("id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return recs, nil
}
