package service

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"
	"github.com/amphorabeer/brewhouse/internal/repository"
	"github.com/amphorabeer/brewhouse/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type TankService interface {
	Create(ctx context.Context, tenantID uuid.UUID, req dto.CreateTankRequest) (*dto.TankResponse, error)
	Get(ctx context.Context, tenantID uuid.UUID, id string) (*dto.TankResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.TankFilter) ([]dto.TankResponse, int64, error)
	Update(ctx context.Context, tenantID uuid.UUID, id string, req dto.UpdateTankRequest) (*dto.TankResponse, error)
	// MarkCleaned returns a needs_cleaning tank to available.
	MarkCleaned(ctx context.Context, tenantID uuid.UUID, id string) (*dto.TankResponse, error)
}

type tankService struct {
	tanks       repository.TankRepository
	assignments repository.AssignmentRepository
	dispatcher  *worker.Dispatcher
}

func NewTankService(tanks repository.TankRepository, assignments repository.AssignmentRepository, dispatcher *worker.Dispatcher) TankService {
	return &tankService{tanks: tanks, assignments: assignments, dispatcher: dispatcher}
}

func (s *tankService) Create(ctx context.Context, tenantID uuid.UUID, req dto.CreateTankRequest) (*dto.TankResponse, error) {
	tank := &model.Tank{
		TenantID: tenantID,
		Name:     req.Name,
		Capacity: req.Capacity,
		Status:   model.TankStatusAvailable,
	}
	if err := s.tanks.Create(ctx, tank); err != nil {
		return nil, err
	}
	s.syncMirror(ctx, tenantID, tank.ID)
	resp := s.toResponse(ctx, tenantID, tank)
	return &resp, nil
}

func (s *tankService) Get(ctx context.Context, tenantID uuid.UUID, id string) (*dto.TankResponse, error) {
	tankID, err := uuid.Parse(id)
	if err != nil {
		return nil, apierror.NewValidation("tank id must be a valid UUID")
	}
	tank, err := s.tanks.FindByID(ctx, tenantID, tankID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeTankNotFound, "tank not found")
	}
	resp := s.toResponse(ctx, tenantID, tank)
	return &resp, nil
}

func (s *tankService) List(ctx context.Context, tenantID uuid.UUID, filter dto.TankFilter) ([]dto.TankResponse, int64, error) {
	tanks, total, err := s.tanks.List(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]dto.TankResponse, 0, len(tanks))
	for i := range tanks {
		out = append(out, s.toResponse(ctx, tenantID, &tanks[i]))
	}
	return out, total, nil
}

func (s *tankService) Update(ctx context.Context, tenantID uuid.UUID, id string, req dto.UpdateTankRequest) (*dto.TankResponse, error) {
	tankID, err := uuid.Parse(id)
	if err != nil {
		return nil, apierror.NewValidation("tank id must be a valid UUID")
	}
	tank, err := s.tanks.FindByID(ctx, tenantID, tankID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeTankNotFound, "tank not found")
	}
	if req.Name != nil {
		tank.Name = *req.Name
	}
	if req.Capacity != nil {
		if req.Capacity.LessThanOrEqual(decimal.Zero) {
			return nil, apierror.NewValidation("capacity must be greater than zero")
		}
		// Shrinking below the volume already in the tank would make the
		// occupant invalid retroactively.
		active, err := s.activeVolume(ctx, tenantID, tank.ID)
		if err != nil {
			return nil, err
		}
		if req.Capacity.LessThan(active) {
			return nil, apierror.NewValidation("capacity cannot drop below the volume currently in the tank")
		}
		tank.Capacity = *req.Capacity
	}
	if err := s.tanks.Update(ctx, tank); err != nil {
		return nil, err
	}
	s.syncMirror(ctx, tenantID, tank.ID)
	resp := s.toResponse(ctx, tenantID, tank)
	return &resp, nil
}

func (s *tankService) MarkCleaned(ctx context.Context, tenantID uuid.UUID, id string) (*dto.TankResponse, error) {
	tankID, err := uuid.Parse(id)
	if err != nil {
		return nil, apierror.NewValidation("tank id must be a valid UUID")
	}
	tank, err := s.tanks.FindByID(ctx, tenantID, tankID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeTankNotFound, "tank not found")
	}
	if tank.Status != model.TankStatusNeedsCleaning {
		return nil, apierror.NewConflict(apierror.CodeValidation, "only a needs_cleaning tank can be marked cleaned")
	}
	tank.Status = model.TankStatusAvailable
	if err := s.tanks.Update(ctx, tank); err != nil {
		return nil, err
	}
	s.syncMirror(ctx, tenantID, tank.ID)
	resp := s.toResponse(ctx, tenantID, tank)
	return &resp, nil
}

func (s *tankService) activeVolume(ctx context.Context, tenantID, tankID uuid.UUID) (decimal.Decimal, error) {
	assignments, err := s.assignments.FindActiveByTank(ctx, tenantID, tankID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range assignments {
		total = total.Add(a.PlannedVolume)
	}
	return total, nil
}

func (s *tankService) syncMirror(ctx context.Context, tenantID, tankID uuid.UUID) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.EnqueueMirrorSync(ctx, worker.MirrorJobPayload{
		TenantID: tenantID.String(),
		TankID:   tankID.String(),
	}); err != nil {
		log.Warn().Err(err).Str("tank", tankID.String()).Msg("mirror sync enqueue failed")
	}
}

func (s *tankService) toResponse(ctx context.Context, tenantID uuid.UUID, t *model.Tank) dto.TankResponse {
	active, err := s.activeVolume(ctx, tenantID, t.ID)
	if err != nil {
		active = decimal.Zero
	}
	resp := dto.TankResponse{
		ID:           t.ID.String(),
		Name:         t.Name,
		Capacity:     t.Capacity,
		Status:       t.Status,
		ActiveVolume: active,
	}
	if t.CurrentLotID != nil {
		id := t.CurrentLotID.String()
		resp.CurrentLotID = &id
	}
	if t.CurrentPhase != nil {
		phase := string(*t.CurrentPhase)
		resp.CurrentPhase = &phase
	}
	if t.CurrentLot != nil {
		resp.CurrentLot = &t.CurrentLot.Code
	}
	return resp
}
