package model

import "time"

// PredictionRecord is one logged prediction. Rows are append-only.
type PredictionRecord struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"not null;index:idx_history_user_time,priority:1"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE"`
	Result      string    `gorm:"size:32;not null"`
	Pregnancies float64   `gorm:"not null"`
	Glucose     float64   `gorm:"not null"`
	BP          float64   `gorm:"column:bp;not null"`
	Skin        float64   `gorm:"not null"`
	Insulin     float64   `gorm:"not null"`
	BMI         float64   `gorm:"column:bmi;not null"`
	DPF         float64   `gorm:"column:dpf;not null"`
	Age         float64   `gorm:"not null"`
	PredictedAt time.Time `gorm:"not null;index:idx_history_user_time,priority:2"`
}

// TableName keeps the historical table name.
func (PredictionRecord) TableName() string {
	return "history"
}
