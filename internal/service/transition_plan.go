package service

import (
	"context"
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// transitionMode is the single execution mode selected from the request flags
// plus the current lot graph.
type transitionMode int

const (
	modeStayInTank transitionMode = iota + 1
	modeBlend
	modeTransfer
	modeSplit
)

func (m transitionMode) String() string {
	switch m {
	case modeStayInTank:
		return "stay_in_tank"
	case modeBlend:
		return "blend"
	case modeTransfer:
		return "transfer"
	case modeSplit:
		return "split"
	default:
		return "unknown"
	}
}

// allocation is one resolved destination: the tank row plus requested volume.
type allocation struct {
	Tank   *model.Tank
	Volume decimal.Decimal
}

// transitionPlan is the resolver's output: exactly one mode plus the minimal
// state needed to execute it. All cross-step signals live here as typed
// fields — the request is never mutated.
type transitionPlan struct {
	Mode  transitionMode
	Batch *model.Batch

	// Lot is the lot whose phase becomes conditioning (transfer/split/stay)
	// or the moving lot (blend). When CreateLot is set the lot row does not
	// exist yet and is persisted inside the commit.
	Lot       *model.Lot
	CreateLot bool

	// RetireParent is the structural split parent to mark completed when the
	// engine operates on a sibling child from a prior split.
	RetireParent *model.Lot

	// Blend only.
	TargetLot         *model.Lot
	ContributedVolume decimal.Decimal
	TargetLinks       []model.LotBatch

	// Stay-in-tank only: the active fermentation assignment to roll over.
	StayAssignment *model.TankAssignment

	Allocations []allocation
}

// resolvePlan inspects the request plus the current lot graph and selects
// exactly one execution mode. The order is an explicit first-match contract:
//
//  1. keep_same_tank + an active fermentation assignment → stay-in-tank
//  2. enable_blend + target lot id                       → blend
//  3. non-empty allocations                              → transfer / split
//  4. otherwise                                          → no tanks supplied
//
// Contradictory flag combinations are rejected outright instead of being
// silently resolved by precedence.
func (s *transitionService) resolvePlan(ctx context.Context, tenantID uuid.UUID, batch *model.Batch, req dto.TransitionRequest) (*transitionPlan, error) {
	if req.KeepSameTank && req.EnableBlend {
		return nil, apierror.NewValidation("keep_same_tank and enable_blend are contradictory")
	}
	if req.EnableBlend && req.IsSplit {
		return nil, apierror.NewValidation("enable_blend and is_split are contradictory")
	}
	if req.KeepSameTank && req.IsSplit {
		return nil, apierror.NewValidation("keep_same_tank and is_split are contradictory")
	}

	plan := &transitionPlan{Batch: batch}

	// 1. Stay-in-tank: only when the resolved source lot actually holds an
	// active fermentation assignment; otherwise fall through. When the lot
	// spans several tanks, source_tank_id selects which assignment rolls over.
	if req.KeepSameTank {
		lot, _, err := s.resolveSourceLot(ctx, tenantID, batch, req.SourceLotID)
		if err != nil {
			return nil, err
		}
		var sourceTank *uuid.UUID
		if req.SourceTankID != nil {
			id, err := uuid.Parse(*req.SourceTankID)
			if err != nil {
				return nil, apierror.NewValidation("source_tank_id is not a valid UUID")
			}
			sourceTank = &id
		}
		if lot != nil {
			open, err := s.assignments.FindOpenByLot(ctx, tenantID, lot.ID, model.PhaseFermentation)
			if err != nil {
				return nil, apierror.New("failed to load tank assignments")
			}
			for i := range open {
				if open[i].Status != model.StatusActive {
					continue
				}
				if sourceTank != nil && open[i].TankID != *sourceTank {
					continue
				}
				plan.Mode = modeStayInTank
				plan.Lot = lot
				plan.StayAssignment = &open[i]
				return plan, nil
			}
		}
	}

	// 2. Blend.
	if req.EnableBlend && req.BlendTargetLotID != nil {
		return s.resolveBlendPlan(ctx, tenantID, batch, req, plan)
	}

	// 3. Transfer / split.
	if len(req.Allocations) > 0 {
		return s.resolveAllocationPlan(ctx, tenantID, batch, req, plan)
	}

	// 4. Nothing to do.
	return nil, apierror.NewConflict(apierror.CodeTanksUnavailable, "no tanks supplied")
}

// resolveAllocationPlan handles the transfer/split sub-resolution against the
// lot graph. A batch may already have 0, 1, or N fermentation lots depending
// on prior splits:
//
//	(a) explicit source lot that is a parent with unprocessed fermentation
//	    children → operate on the first unprocessed child only
//	(b) explicit source lot that is a leaf → operate on it
//	(c) no explicit source lot, sibling children exist from a prior split →
//	    operate on the first sibling, retire the structural parent
//	(d) a single still-fermenting lot → ordinary case
//	(e) no fermentation lot at all → create a fresh one
func (s *transitionService) resolveAllocationPlan(ctx context.Context, tenantID uuid.UUID, batch *model.Batch, req dto.TransitionRequest, plan *transitionPlan) (*transitionPlan, error) {
	if req.IsSplit && len(req.Allocations) < 2 {
		return nil, apierror.NewValidation("a split requires at least two allocations")
	}
	if !req.IsSplit && len(req.Allocations) > 1 {
		return nil, apierror.NewValidation("multiple allocations require is_split")
	}

	allocs, err := s.resolveAllocations(ctx, tenantID, req.Allocations)
	if err != nil {
		return nil, err
	}
	plan.Allocations = allocs
	if req.IsSplit {
		plan.Mode = modeSplit
	} else {
		plan.Mode = modeTransfer
	}

	lot, retireParent, err := s.resolveSourceLot(ctx, tenantID, batch, req.SourceLotID)
	if err != nil {
		return nil, err
	}
	plan.RetireParent = retireParent

	if lot == nil {
		// (e) fresh lot: total allocation volume, persisted inside the commit.
		code, err := s.codes.NextLotCode(ctx, tenantID)
		if err != nil {
			return nil, apierror.New("lot code generation failed")
		}
		total := decimal.Zero
		for _, a := range allocs {
			total = total.Add(a.Volume)
		}
		lot = &model.Lot{
			TenantID:      tenantID,
			Code:          code,
			Phase:         model.PhaseFermentation,
			Status:        model.StatusActive,
			PlannedVolume: total,
		}
		plan.CreateLot = true
	}

	if plan.Mode == modeSplit && lot.IsBlend {
		return nil, apierror.NewValidation(fmt.Sprintf("lot %s is a blend target and cannot be split", lot.Code))
	}

	plan.Lot = lot
	return plan, nil
}

// resolveSourceLot picks the lot the engine will operate on. Returns a nil
// lot when the batch has no fermentation-phase lot yet (sub-case e). The
// second return value is the structural parent to retire (sub-case c only).
func (s *transitionService) resolveSourceLot(ctx context.Context, tenantID uuid.UUID, batch *model.Batch, sourceLotID *string) (*model.Lot, *model.Lot, error) {
	if sourceLotID != nil {
		id, err := uuid.Parse(*sourceLotID)
		if err != nil {
			return nil, nil, apierror.NewValidation("source_lot_id is not a valid UUID")
		}
		lot, err := s.lots.FindByID(ctx, tenantID, id)
		if err != nil {
			return nil, nil, apierror.NewNotFound(apierror.CodeLotNotFound, "source lot not found")
		}
		// (a) parent with unprocessed fermentation children: first child only.
		children, err := s.lots.FindChildren(ctx, tenantID, lot.ID)
		if err != nil {
			return nil, nil, apierror.New("failed to load lot children")
		}
		for i := range children {
			if children[i].Phase == model.PhaseFermentation && children[i].Status != model.StatusCompleted {
				return &children[i], nil, nil
			}
		}
		// (b) leaf.
		return lot, nil, nil
	}

	lots, err := s.lots.FindByBatch(ctx, tenantID, batch.ID, model.PhaseFermentation)
	if err != nil {
		return nil, nil, apierror.New("failed to load batch lots")
	}
	// Drop retired rows; FindByBatch orders by code so "first" is stable.
	var open []model.Lot
	for i := range lots {
		if lots[i].Status != model.StatusCompleted {
			open = append(open, lots[i])
		}
	}
	if len(open) == 0 {
		return nil, nil, nil // (e)
	}

	// (c) sibling children from a prior split: first sibling, retire parent.
	for i := range open {
		if open[i].ParentLotID != nil {
			parent, err := s.lots.FindByID(ctx, tenantID, *open[i].ParentLotID)
			if err != nil {
				return nil, nil, apierror.New("failed to load structural parent lot")
			}
			if parent.Status == model.StatusCompleted {
				parent = nil
			}
			return &open[i], parent, nil
		}
	}

	// (d) ordinary case.
	return &open[0], nil, nil
}

// resolveAllocations loads every destination tank and validates volumes.
// Tank-not-found, non-positive volumes, and duplicate destinations abort
// before anything else runs. A tank named by two entries is a conflict in
// itself: the second assignment could never become active.
func (s *transitionService) resolveAllocations(ctx context.Context, tenantID uuid.UUID, reqs []dto.AllocationRequest) ([]allocation, error) {
	allocs := make([]allocation, 0, len(reqs))
	seen := make(map[uuid.UUID]bool, len(reqs))
	for _, a := range reqs {
		if a.Volume.LessThanOrEqual(decimal.Zero) {
			return nil, apierror.NewValidation("allocation volume must be positive")
		}
		id, err := uuid.Parse(a.TankID)
		if err != nil {
			return nil, apierror.NewValidation("tank_id is not a valid UUID")
		}
		tank, err := s.tanks.FindByID(ctx, tenantID, id)
		if err != nil {
			return nil, apierror.NewNotFound(apierror.CodeTankNotFound, fmt.Sprintf("tank %s not found", a.TankID))
		}
		if seen[tank.ID] {
			return nil, apierror.NewConflict(apierror.CodeTankOccupied, fmt.Sprintf(
				"tank %s is named by more than one allocation", tank.Name))
		}
		seen[tank.ID] = true
		allocs = append(allocs, allocation{Tank: tank, Volume: a.Volume})
	}
	return allocs, nil
}

// resolveBlendPlan loads the blend target, the moving lot, and the moving
// batch's join row that supplies the contributed volume.
func (s *transitionService) resolveBlendPlan(ctx context.Context, tenantID uuid.UUID, batch *model.Batch, req dto.TransitionRequest, plan *transitionPlan) (*transitionPlan, error) {
	targetID, err := uuid.Parse(*req.BlendTargetLotID)
	if err != nil {
		return nil, apierror.NewValidation("blend_target_lot_id is not a valid UUID")
	}
	target, err := s.lots.FindByID(ctx, tenantID, targetID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeLotNotFound, "blend target lot not found")
	}

	moving, _, err := s.resolveSourceLot(ctx, tenantID, batch, req.SourceLotID)
	if err != nil {
		return nil, err
	}
	if moving == nil {
		return nil, apierror.NewNotFound(apierror.CodeLotNotFound, "batch has no fermentation lot to blend")
	}

	link, err := s.lots.FindLink(ctx, tenantID, moving.ID, batch.ID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeLotNotFound, "batch is not linked to its source lot")
	}

	targetLinks, err := s.lots.FindLinksByLot(ctx, tenantID, target.ID)
	if err != nil {
		return nil, apierror.New("failed to load blend target links")
	}

	plan.Mode = modeBlend
	plan.Lot = moving
	plan.TargetLot = target
	plan.ContributedVolume = link.Volume
	plan.TargetLinks = targetLinks
	return plan, nil
}
