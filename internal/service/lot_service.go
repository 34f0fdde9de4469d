package service

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/repository"

	"github.com/google/uuid"
)

type LotService interface {
	// Get returns the lineage view of a lot: parent, children and batch links.
	Get(ctx context.Context, tenantID uuid.UUID, id string) (*dto.LotDetailResponse, error)
}

type lotService struct {
	lots repository.LotRepository
}

func NewLotService(lots repository.LotRepository) LotService {
	return &lotService{lots: lots}
}

func (s *lotService) Get(ctx context.Context, tenantID uuid.UUID, id string) (*dto.LotDetailResponse, error) {
	lotID, err := uuid.Parse(id)
	if err != nil {
		return nil, apierror.NewValidation("lot id must be a valid UUID")
	}
	lot, err := s.lots.FindByID(ctx, tenantID, lotID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeLotNotFound, "lot not found")
	}

	resp := &dto.LotDetailResponse{
		ID:            lot.ID.String(),
		Code:          lot.Code,
		Phase:         string(lot.Phase),
		Status:        lot.Status,
		PlannedVolume: lot.PlannedVolume,
		IsBlend:       lot.IsBlend,
	}
	if lot.BlendedAt != nil {
		at := lot.BlendedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.BlendedAt = &at
	}

	if lot.ParentLotID != nil {
		parent, err := s.lots.FindByID(ctx, tenantID, *lot.ParentLotID)
		if err == nil {
			p := lotToResponse(parent)
			resp.Parent = &p
		}
	}

	children, err := s.lots.FindChildren(ctx, tenantID, lot.ID)
	if err == nil {
		for i := range children {
			resp.Children = append(resp.Children, lotToResponse(&children[i]))
		}
	}

	links, err := s.lots.FindLinksByLot(ctx, tenantID, lot.ID)
	if err == nil {
		resp.Batches = linksToItems(links)
	}

	return resp, nil
}
