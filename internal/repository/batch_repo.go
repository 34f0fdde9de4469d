package repository

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchRepository defines the data access contract for production batches.
// Services depend on this interface, not on the concrete GORM implementation,
// enabling clean unit testing via in-memory stubs.
type BatchRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, b *model.Batch) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Batch, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.BatchFilter) ([]model.Batch, int64, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type batchRepo struct{ db *gorm.DB }

func NewBatchRepository(db *gorm.DB) BatchRepository { return &batchRepo{db: db} }

func (r *batchRepo) DB() *gorm.DB { return r.db }

func (r *batchRepo) CreateTx(ctx context.Context, tx *gorm.DB, b *model.Batch) error {
	return tx.WithContext(ctx).Create(b).Error
}

func (r *batchRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	err := r.db.WithContext(ctx).
		Preload("LotLinks.Lot").
		Where("tenant_id = ?", tenantID).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.BatchFilter) ([]model.Batch, int64, error) {
	var batches []model.Batch
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Batch{}).Where("tenant_id = ?", tenantID)
	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := q.Preload("LotLinks.Lot").
		Order("brewed_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&batches).Error
	return batches, total, err
}

func (r *batchRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return tx.Model(&model.Batch{}).Where("id = ?", id).Update("status", status).Error
}
