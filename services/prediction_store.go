package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"kick-prediction-api/models"
)

// PredictionStore is the persistence gateway for prediction records.
// Every operation commits or fails as a single statement.
type PredictionStore struct {
	db *gorm.DB
}

func NewPredictionStore(db *gorm.DB) *PredictionStore {
	return &PredictionStore{db: db}
}

// Create inserts the record and fills in its id and creation timestamp.
func (s *PredictionStore) Create(ctx context.Context, rec *models.PredictionInput) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetByID returns gorm.ErrRecordNotFound when no row matches.
func (s *PredictionStore) GetByID(ctx context.Context, id uint) (*models.PredictionInput, error) {
	var rec models.PredictionInput
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns records in insertion order with offset pagination.
func (s *PredictionStore) List(ctx context.Context, skip, limit int) ([]models.PredictionInput, error) {
	recs := make([]models.PredictionInput, 0, limit)
	err := s.db.WithContext(ctx).
		Order("id ASC").
		Offset(skip).
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// DeleteByID reports whether a row existed and was removed.
func (s *PredictionStore) DeleteByID(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.PredictionInput{}, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
