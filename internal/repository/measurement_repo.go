package repository

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/model"

	"gorm.io/gorm"
)

// MeasurementRepository captures gravity/temperature readings. Writes happen
// outside the transition transaction and are best-effort by contract.
type MeasurementRepository interface {
	Create(ctx context.Context, m *model.Measurement) error
}

type measurementRepo struct{ db *gorm.DB }

func NewMeasurementRepository(db *gorm.DB) MeasurementRepository { return &measurementRepo{db: db} }

func (r *measurementRepo) Create(ctx context.Context, m *model.Measurement) error {
	return r.db.WithContext(ctx).Create(m).Error
}
