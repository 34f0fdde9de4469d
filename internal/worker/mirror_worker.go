package worker

// mirror_worker.go
// Resyncs the administrative tank registry from QueueMirror. The registry is
// an idempotent projection of the authoritative tank + assignment state: each
// sync recomputes the full record, so replays and out-of-order jobs converge.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/model"
	"github.com/amphorabeer/brewhouse/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type MirrorWorker struct {
	tanks       repository.TankRepository
	assignments repository.AssignmentRepository
}

func NewMirrorWorker(tanks repository.TankRepository, assignments repository.AssignmentRepository) *MirrorWorker {
	return &MirrorWorker{tanks: tanks, assignments: assignments}
}

// Process upserts the registry record for one tank from current state.
func (w *MirrorWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload MirrorJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("mirror_worker: invalid payload")
		return nil
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		log.Error().Str("tenant_id", payload.TenantID).Msg("mirror_worker: invalid tenant_id")
		return nil
	}
	tankID, err := uuid.Parse(payload.TankID)
	if err != nil {
		log.Error().Str("tank_id", payload.TankID).Msg("mirror_worker: invalid tank_id")
		return nil
	}

	tank, err := w.tanks.FindByID(ctx, tenantID, tankID)
	if err != nil {
		return fmt.Errorf("mirror_worker: load tank %s: %w", payload.TankID, err)
	}

	active, err := w.assignments.FindActiveByTank(ctx, tenantID, tankID)
	if err != nil {
		return fmt.Errorf("mirror_worker: load assignments for tank %s: %w", payload.TankID, err)
	}
	volume := decimal.Zero
	var lotCode *string
	for i := range active {
		volume = volume.Add(active[i].PlannedVolume)
		if active[i].Lot != nil {
			code := active[i].Lot.Code
			lotCode = &code
		}
	}

	rec := model.TankRegistryRecord{
		TenantID: tenantID,
		TankID:   tankID,
		Status:   tank.Status,
		LotCode:  lotCode,
		Volume:   volume,
		Phase:    tank.CurrentPhase,
	}
	if err := w.tanks.UpsertRegistry(ctx, &rec); err != nil {
		return fmt.Errorf("mirror_worker: upsert registry for tank %s: %w", payload.TankID, err)
	}
	log.Debug().Str("tank_id", payload.TankID).Str("status", tank.Status).Msg("mirror_worker: registry synced")
	return nil
}
