package repository

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimelineRepository persists audit events. Only the timeline worker writes
// here; the engine enqueues events fire-and-forget.
type TimelineRepository interface {
	Create(ctx context.Context, e *model.TimelineEvent) error
	ListByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]model.TimelineEvent, error)
}

type timelineRepo struct{ db *gorm.DB }

func NewTimelineRepository(db *gorm.DB) TimelineRepository { return &timelineRepo{db: db} }

func (r *timelineRepo) Create(ctx context.Context, e *model.TimelineEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *timelineRepo) ListByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]model.TimelineEvent, error) {
	var events []model.TimelineEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND batch_id = ?", tenantID, batchID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
