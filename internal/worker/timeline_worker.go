package worker

// timeline_worker.go
// Persists audit events from QueueTimeline. The engine enqueues these
// fire-and-forget; a lost event never fails the transition it describes.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/model"
	"github.com/amphorabeer/brewhouse/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type TimelineWorker struct {
	timeline repository.TimelineRepository
}

func NewTimelineWorker(timeline repository.TimelineRepository) *TimelineWorker {
	return &TimelineWorker{timeline: timeline}
}

// Process appends one TimelineEvent row. A malformed payload is dropped, not
// retried — it will never become valid.
func (w *TimelineWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload TimelineJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("timeline_worker: invalid payload")
		return nil
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		log.Error().Str("tenant_id", payload.TenantID).Msg("timeline_worker: invalid tenant_id")
		return nil
	}
	batchID, err := uuid.Parse(payload.BatchID)
	if err != nil {
		log.Error().Str("batch_id", payload.BatchID).Msg("timeline_worker: invalid batch_id")
		return nil
	}
	actorID, err := uuid.Parse(payload.ActorID)
	if err != nil {
		log.Error().Str("actor_id", payload.ActorID).Msg("timeline_worker: invalid actor_id")
		return nil
	}

	event := model.TimelineEvent{
		TenantID:  tenantID,
		BatchID:   batchID,
		EventType: payload.EventType,
		Message:   payload.Message,
		ActorID:   actorID,
	}
	if payload.LotID != "" {
		if lotID, err := uuid.Parse(payload.LotID); err == nil {
			event.LotID = &lotID
		}
	}

	if err := w.timeline.Create(ctx, &event); err != nil {
		return fmt.Errorf("timeline_worker: persist event: %w", err)
	}
	log.Debug().Str("batch_id", payload.BatchID).Str("event", payload.EventType).Msg("timeline_worker: event recorded")
	return nil
}
