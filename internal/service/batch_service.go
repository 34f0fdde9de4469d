package service

import (
	"context"
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"
	"github.com/amphorabeer/brewhouse/internal/repository"
	"github.com/amphorabeer/brewhouse/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BatchService interface {
	// Create opens a production run: the batch row, its initial fermentation
	// lot with a 100% link, and an active assignment on the chosen tank.
	Create(ctx context.Context, tenantID, userID uuid.UUID, req dto.CreateBatchRequest) (*dto.BatchResponse, error)
	Get(ctx context.Context, tenantID uuid.UUID, id string) (*dto.BatchResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.BatchFilter) (*dto.BatchListResponse, error)
}

type batchService struct {
	batches     repository.BatchRepository
	lots        repository.LotRepository
	tanks       repository.TankRepository
	assignments repository.AssignmentRepository
	codes       LotCodeGenerator
	dispatcher  *worker.Dispatcher
}

func NewBatchService(
	batches repository.BatchRepository,
	lots repository.LotRepository,
	tanks repository.TankRepository,
	assignments repository.AssignmentRepository,
	codes LotCodeGenerator,
	dispatcher *worker.Dispatcher,
) BatchService {
	return &batchService{
		batches:     batches,
		lots:        lots,
		tanks:       tanks,
		assignments: assignments,
		codes:       codes,
		dispatcher:  dispatcher,
	}
}

func (s *batchService) Create(ctx context.Context, tenantID, userID uuid.UUID, req dto.CreateBatchRequest) (*dto.BatchResponse, error) {
	tankID, err := uuid.Parse(req.TankID)
	if err != nil {
		return nil, apierror.NewValidation("tank_id must be a valid UUID")
	}
	tank, err := s.tanks.FindByID(ctx, tenantID, tankID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeTankNotFound, "tank not found")
	}

	active, err := s.assignments.FindActiveByTank(ctx, tenantID, tank.ID)
	if err != nil {
		return nil, apierror.New("failed to load tank occupancy")
	}
	if len(active) > 0 {
		occupant := active[0].LotID.String()
		if active[0].Lot != nil {
			occupant = active[0].Lot.Code
		}
		return nil, apierror.NewConflict(apierror.CodeTankOccupied, fmt.Sprintf(
			"tank %s is occupied by lot %s in phase %s", tank.Name, occupant, active[0].Phase))
	}
	if req.PlannedVolume.GreaterThan(tank.Capacity) {
		return nil, overflowError(tank, decimal.Zero, req.PlannedVolume)
	}

	batch := &model.Batch{
		TenantID:      tenantID,
		Code:          req.Code,
		RecipeName:    req.RecipeName,
		Status:        model.BatchStatusFermenting,
		PlannedVolume: req.PlannedVolume,
		BrewedAt:      req.PlannedStart,
	}
	code, err := s.codes.NextLotCode(ctx, tenantID)
	if err != nil {
		return nil, apierror.New("lot code generation failed")
	}
	lot := &model.Lot{
		TenantID:      tenantID,
		Code:          code,
		Phase:         model.PhaseFermentation,
		Status:        model.StatusActive,
		PlannedVolume: req.PlannedVolume,
	}

	err = runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		if err := s.batches.CreateTx(ctx, tx, batch); err != nil {
			return err
		}
		if err := s.lots.CreateTx(ctx, tx, lot); err != nil {
			return err
		}
		link := &model.LotBatch{
			TenantID:   tenantID,
			LotID:      lot.ID,
			BatchID:    batch.ID,
			Phase:      model.PhaseFermentation,
			Volume:     req.PlannedVolume,
			Percentage: decimal.NewFromInt(100),
		}
		if err := s.lots.CreateLinkTx(ctx, tx, link); err != nil {
			return err
		}
		assignment := &model.TankAssignment{
			TenantID:      tenantID,
			TankID:        tank.ID,
			LotID:         lot.ID,
			Phase:         model.PhaseFermentation,
			Status:        model.StatusActive,
			PlannedStart:  req.PlannedStart,
			PlannedEnd:    req.PlannedEnd,
			PlannedVolume: req.PlannedVolume,
		}
		if err := s.assignments.CreateTx(ctx, tx, assignment); err != nil {
			return err
		}
		return s.tanks.OccupyTx(tx, tank.ID, lot.ID, model.PhaseFermentation)
	})
	if err != nil {
		if apiErr, ok := err.(*apierror.APIError); ok {
			return nil, apiErr
		}
		return nil, apierror.New("failed to create batch")
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.EnqueueTimeline(ctx, worker.TimelineJobPayload{
			TenantID:  tenantID.String(),
			BatchID:   batch.ID.String(),
			LotID:     lot.ID.String(),
			EventType: "batch_started",
			Message:   fmt.Sprintf("batch %s started fermentation in tank %s as lot %s", batch.Code, tank.Name, lot.Code),
			ActorID:   userID.String(),
		}); err != nil {
			log.Warn().Err(err).Str("batch", batch.Code).Msg("timeline enqueue failed")
		}
		if err := s.dispatcher.EnqueueMirrorSync(ctx, worker.MirrorJobPayload{
			TenantID: tenantID.String(),
			TankID:   tank.ID.String(),
		}); err != nil {
			log.Warn().Err(err).Str("tank", tank.Name).Msg("mirror sync enqueue failed")
		}
	}

	resp := batchToResponse(batch)
	resp.Lots = []dto.LotLinkItem{{
		LotID:      lot.ID.String(),
		LotCode:    lot.Code,
		Phase:      string(model.PhaseFermentation),
		Volume:     req.PlannedVolume,
		Percentage: decimal.NewFromInt(100),
	}}
	return &resp, nil
}

func (s *batchService) Get(ctx context.Context, tenantID uuid.UUID, id string) (*dto.BatchResponse, error) {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return nil, apierror.NewValidation("batch id must be a valid UUID")
	}
	batch, err := s.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeBatchNotFound, "batch not found")
	}
	resp := batchToResponse(batch)
	resp.Lots = linksToItems(batch.LotLinks)
	return &resp, nil
}

func (s *batchService) List(ctx context.Context, tenantID uuid.UUID, filter dto.BatchFilter) (*dto.BatchListResponse, error) {
	batches, total, err := s.batches.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.BatchResponse, 0, len(batches))
	for i := range batches {
		item := batchToResponse(&batches[i])
		item.Lots = linksToItems(batches[i].LotLinks)
		data = append(data, item)
	}
	return &dto.BatchListResponse{
		Data:  data,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

func batchToResponse(b *model.Batch) dto.BatchResponse {
	return dto.BatchResponse{
		ID:            b.ID.String(),
		Code:          b.Code,
		RecipeName:    b.RecipeName,
		Status:        b.Status,
		PlannedVolume: b.PlannedVolume,
		BrewedAt:      b.BrewedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func linksToItems(links []model.LotBatch) []dto.LotLinkItem {
	items := make([]dto.LotLinkItem, 0, len(links))
	for _, lb := range links {
		item := dto.LotLinkItem{
			LotID:      lb.LotID.String(),
			Phase:      string(lb.Phase),
			Volume:     lb.Volume,
			Percentage: lb.Percentage,
		}
		if lb.Lot != nil {
			item.LotCode = lb.Lot.Code
		}
		items = append(items, item)
	}
	return items
}
