package repository

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransferRepository writes the append-only movement audit. The engine never
// reads transfers back; List exists for the operator-facing audit endpoint.
type TransferRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transfer) error
	List(ctx context.Context, tenantID uuid.UUID, filter dto.TransferFilter) ([]model.Transfer, int64, error)
}

type transferRepo struct{ db *gorm.DB }

func NewTransferRepository(db *gorm.DB) TransferRepository { return &transferRepo{db: db} }

func (r *transferRepo) CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transfer) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *transferRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.TransferFilter) ([]model.Transfer, int64, error) {
	var transfers []model.Transfer
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Transfer{}).Where("tenant_id = ?", tenantID)
	if filter.BatchID != "" {
		q = q.Where("batch_id = ?", filter.BatchID)
	}
	if filter.Kind != "" && filter.Kind != "all" {
		q = q.Where("kind = ?", filter.Kind)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := q.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&transfers).Error
	return transfers, total, err
}
