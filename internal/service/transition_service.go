package service

import (
	"context"
	"fmt"
	"time"

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

// TransitionService is the lot/tank phase-transition engine. One call moves a
// batch's in-process liquid from fermentation to conditioning in exactly one
// of four modes: stay-in-tank, blend, direct transfer, or split.
type TransitionService interface {
	Execute(ctx context.Context, tenantID, userID uuid.UUID, req dto.TransitionRequest) (*dto.TransitionResponse, error)
	ListTransfers(ctx context.Context, tenantID uuid.UUID, filter dto.TransferFilter) ([]dto.TransferListItem, int64, error)
}

type transitionService struct {
	batches      repository.BatchRepository
	lots         repository.LotRepository
	tanks        repository.TankRepository
	assignments  repository.AssignmentRepository
	transfers    repository.TransferRepository
	measurements repository.MeasurementRepository
	codes        LotCodeGenerator
	dispatcher   *worker.Dispatcher
}

func NewTransitionService(
	batches repository.BatchRepository,
	lots repository.LotRepository,
	tanks repository.TankRepository,
	assignments repository.AssignmentRepository,
	transfers repository.TransferRepository,
	measurements repository.MeasurementRepository,
	codes LotCodeGenerator,
	dispatcher *worker.Dispatcher,
) TransitionService {
	return &transitionService{
		batches:      batches,
		lots:         lots,
		tanks:        tanks,
		assignments:  assignments,
		transfers:    transfers,
		measurements: measurements,
		codes:        codes,
		dispatcher:   dispatcher,
	}
}

// runTx executes fn inside a GORM transaction when db is available, or calls
// fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// execState accumulates what a transition touched, for the response and the
// post-commit side writes.
type execState struct {
	resultLot        *model.Lot
	created          []model.TankAssignment
	touchedTanks     map[uuid.UUID]bool
	affectedBatchIDs []uuid.UUID
	summary          string
	eventType        string
	fromTankID       *uuid.UUID
}

// Execute resolves the mode, validates capacity/occupancy, commits the whole
// mutation as one atomic unit, and fires the best-effort side writes.
//
// NotFound / Validation / ResourceConflict errors are all detected before the
// first mutating write and leave zero side effects. An unexpected failure
// mid-transaction rolls back every mutation performed so far.
func (s *transitionService) Execute(ctx context.Context, tenantID, userID uuid.UUID, req dto.TransitionRequest) (*dto.TransitionResponse, error) {
	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		return nil, apierror.NewValidation("batch_id is not a valid UUID")
	}
	batch, err := s.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, apierror.NewNotFound(apierror.CodeBatchNotFound, "batch not found")
	}

	plan, err := s.resolvePlan(ctx, tenantID, batch, req)
	if err != nil {
		return nil, err
	}

	st := &execState{touchedTanks: make(map[uuid.UUID]bool)}

	// Pre-commit validation. Stay-in-tank is exempt: it never changes tanks.
	var blendTarget *model.TankAssignment
	switch plan.Mode {
	case modeTransfer, modeSplit:
		var movingLotID *uuid.UUID
		if !plan.CreateLot {
			movingLotID = &plan.Lot.ID
		}
		if err := s.validateAllocations(ctx, tenantID, movingLotID, plan.Allocations); err != nil {
			return nil, err
		}
	case modeBlend:
		blendTarget, err = s.findBlendTargetAssignment(ctx, tenantID, plan.TargetLot.ID)
		if err != nil {
			return nil, err
		}
		if err := s.validateBlendCapacity(ctx, tenantID, blendTarget, plan.ContributedVolume); err != nil {
			return nil, err
		}
	}

	txErr := runTx(ctx, s.batches.DB(), func(tx *gorm.DB) error {
		switch plan.Mode {
		case modeStayInTank:
			return s.executeStayInTank(ctx, tx, tenantID, userID, plan, req, st)
		case modeBlend:
			return s.executeBlend(ctx, tx, tenantID, userID, plan, req, blendTarget, st)
		default:
			return s.executeTransferSplit(ctx, tx, tenantID, userID, plan, req, st)
		}
	})
	if txErr != nil {
		if apiErr, ok := txErr.(*apierror.APIError); ok {
			return nil, apiErr
		}
		log.Error().Err(txErr).Str("batch", batch.Code).Msg("transition transaction failed")
		return nil, apierror.New("transition failed")
	}

	s.runSideWrites(ctx, tenantID, userID, batch, plan, req, st)

	return s.buildResponse(st), nil
}

// findBlendTargetAssignment returns the target lot's single active
// conditioning assignment. A blend target keeps its existing occupancy.
func (s *transitionService) findBlendTargetAssignment(ctx context.Context, tenantID, targetLotID uuid.UUID) (*model.TankAssignment, error) {
	open, err := s.assignments.FindOpenByLot(ctx, tenantID, targetLotID, model.PhaseConditioning)
	if err != nil {
		return nil, apierror.New("failed to load blend target assignments")
	}
	for i := range open {
		if open[i].Status == model.StatusActive {
			return &open[i], nil
		}
	}
	return nil, apierror.NewConflict(apierror.CodeTanksUnavailable, "blend target lot has no active tank assignment")
}

// ── Stay-in-tank ─────────────────────────────────────────────────────────────

// executeStayInTank rolls the lot's occupancy over on the same tank: the old
// fermentation assignment closes at the conditioning start instant and a new
// active conditioning assignment with identical volume opens. The tank is not
// released.
func (s *transitionService) executeStayInTank(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID, plan *transitionPlan, req dto.TransitionRequest, st *execState) error {
	lot := plan.Lot
	prev := plan.StayAssignment

	prev.Close(req.PlannedStart)
	if err := s.assignments.CloseTx(tx, prev); err != nil {
		return err
	}

	if err := lot.AdvancePhase(model.PhaseConditioning); err != nil {
		return apierror.NewValidation(err.Error())
	}
	lot.Status = model.StatusActive
	if err := s.lots.UpdateTx(tx, lot); err != nil {
		return err
	}

	next := model.TankAssignment{
		TenantID:      tenantID,
		TankID:        prev.TankID,
		LotID:         lot.ID,
		Phase:         model.PhaseConditioning,
		Status:        model.StatusActive,
		PlannedStart:  req.PlannedStart,
		PlannedEnd:    req.PlannedEnd,
		PlannedVolume: prev.PlannedVolume,
	}
	if err := s.assignments.CreateTx(ctx, tx, &next); err != nil {
		return err
	}
	if err := s.tanks.OccupyTx(tx, prev.TankID, lot.ID, model.PhaseConditioning); err != nil {
		return err
	}

	transfer := model.Transfer{
		TenantID:   tenantID,
		BatchID:    plan.Batch.ID,
		LotID:      lot.ID,
		FromTankID: &prev.TankID,
		ToTankID:   &prev.TankID,
		Kind:       model.TransferKindStay,
		Volume:     prev.PlannedVolume,
		Note:       req.Note,
		CreatedBy:  userID,
	}
	if err := s.transfers.CreateTx(ctx, tx, &transfer); err != nil {
		return err
	}

	st.resultLot = lot
	st.created = append(st.created, next)
	st.touchedTanks[prev.TankID] = true
	st.affectedBatchIDs = []uuid.UUID{plan.Batch.ID}
	st.eventType = "phase_transition"
	st.summary = fmt.Sprintf("lot %s advanced to conditioning in place (%s L)", lot.Code, prev.PlannedVolume)

	return s.recomputeBatchStatuses(tx, tenantID, st.affectedBatchIDs)
}

// ── Direct transfer / split ──────────────────────────────────────────────────

// executeTransferSplit is the shared skeleton for the single-batch lineage
// modes: close the lot's open fermentation assignments, release vacated
// tanks, then either move the lot whole or fan it out into child lots.
func (s *transitionService) executeTransferSplit(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID, plan *transitionPlan, req dto.TransitionRequest, st *execState) error {
	lot := plan.Lot

	if plan.CreateLot {
		if err := s.lots.CreateTx(ctx, tx, lot); err != nil {
			return err
		}
		link := model.LotBatch{
			TenantID:   tenantID,
			LotID:      lot.ID,
			BatchID:    plan.Batch.ID,
			Phase:      model.PhaseFermentation,
			Volume:     lot.PlannedVolume,
			Percentage: decimal.NewFromInt(100),
		}
		if err := s.lots.CreateLinkTx(ctx, tx, &link); err != nil {
			return err
		}
	}

	destinations := make(map[uuid.UUID]bool, len(plan.Allocations))
	for _, a := range plan.Allocations {
		destinations[a.Tank.ID] = true
	}

	if err := s.closeFermentationAssignments(ctx, tx, tenantID, lot.ID, req.PlannedStart, destinations, st); err != nil {
		return err
	}
	if plan.RetireParent != nil {
		if err := s.closeFermentationAssignments(ctx, tx, tenantID, plan.RetireParent.ID, req.PlannedStart, destinations, st); err != nil {
			return err
		}
		plan.RetireParent.Status = model.StatusCompleted
		if err := s.lots.UpdateTx(tx, plan.RetireParent); err != nil {
			return err
		}
	}

	if plan.Mode == modeTransfer {
		if err := s.moveLot(ctx, tx, tenantID, userID, plan, req, st); err != nil {
			return err
		}
	} else {
		if err := s.splitLot(ctx, tx, tenantID, userID, plan, req, st); err != nil {
			return err
		}
	}

	st.affectedBatchIDs = []uuid.UUID{plan.Batch.ID}
	return s.recomputeBatchStatuses(tx, tenantID, st.affectedBatchIDs)
}

// closeFermentationAssignments closes every planned/active fermentation
// assignment of the lot at the conditioning-start instant, releasing the tank
// to needs_cleaning unless it is one of the destinations.
func (s *transitionService) closeFermentationAssignments(ctx context.Context, tx *gorm.DB, tenantID, lotID uuid.UUID, startedAt time.Time, destinations map[uuid.UUID]bool, st *execState) error {
	open, err := s.assignments.FindOpenByLot(ctx, tenantID, lotID, model.PhaseFermentation)
	if err != nil {
		return err
	}
	for i := range open {
		a := &open[i]
		a.Close(startedAt)
		if err := s.assignments.CloseTx(tx, a); err != nil {
			return err
		}
		if st.fromTankID == nil {
			id := a.TankID
			st.fromTankID = &id
		}
		st.touchedTanks[a.TankID] = true
		if !destinations[a.TankID] {
			if err := s.tanks.ReleaseTx(tx, a.TankID, model.TankStatusNeedsCleaning); err != nil {
				return err
			}
		}
	}
	return nil
}

// moveLot advances the lot to conditioning on a single destination tank.
func (s *transitionService) moveLot(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID, plan *transitionPlan, req dto.TransitionRequest, st *execState) error {
	lot := plan.Lot
	dest := plan.Allocations[0]

	if err := lot.AdvancePhase(model.PhaseConditioning); err != nil {
		return apierror.NewValidation(err.Error())
	}
	lot.Status = model.StatusActive
	if err := s.lots.UpdateTx(tx, lot); err != nil {
		return err
	}

	next := model.TankAssignment{
		TenantID:      tenantID,
		TankID:        dest.Tank.ID,
		LotID:         lot.ID,
		Phase:         model.PhaseConditioning,
		Status:        model.StatusActive,
		PlannedStart:  req.PlannedStart,
		PlannedEnd:    req.PlannedEnd,
		PlannedVolume: dest.Volume,
	}
	if err := s.assignments.CreateTx(ctx, tx, &next); err != nil {
		return err
	}
	if err := s.tanks.OccupyTx(tx, dest.Tank.ID, lot.ID, model.PhaseConditioning); err != nil {
		return err
	}

	transfer := model.Transfer{
		TenantID:   tenantID,
		BatchID:    plan.Batch.ID,
		LotID:      lot.ID,
		FromTankID: st.fromTankID,
		ToTankID:   &dest.Tank.ID,
		Kind:       model.TransferKindMove,
		Volume:     dest.Volume,
		Note:       req.Note,
		CreatedBy:  userID,
	}
	if err := s.transfers.CreateTx(ctx, tx, &transfer); err != nil {
		return err
	}

	st.resultLot = lot
	st.created = append(st.created, next)
	st.touchedTanks[dest.Tank.ID] = true
	st.eventType = "phase_transition"
	st.summary = fmt.Sprintf("lot %s transferred to tank %s (%s L)", lot.Code, dest.Tank.Name, dest.Volume)
	return nil
}

// splitLot fans the lot out across the destination tanks: one child lot, one
// join row, and one active conditioning assignment per allocation. The parent
// is retired — the lineage moves to the children. Nesting beyond one split
// level is rejected at resolve time.
func (s *transitionService) splitLot(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID, plan *transitionPlan, req dto.TransitionRequest, st *execState) error {
	lot := plan.Lot

	total := decimal.Zero
	for _, a := range plan.Allocations {
		total = total.Add(a.Volume)
	}

	for i, a := range plan.Allocations {
		child := model.Lot{
			TenantID:      tenantID,
			Code:          fmt.Sprintf("%s-%c", lot.Code, 'A'+i),
			Phase:         model.PhaseConditioning,
			Status:        model.StatusActive,
			PlannedVolume: a.Volume,
		}
		if err := child.SetParent(lot); err != nil {
			return apierror.NewValidation(err.Error())
		}
		if err := s.lots.CreateTx(ctx, tx, &child); err != nil {
			return err
		}

		link := model.LotBatch{
			TenantID:   tenantID,
			LotID:      child.ID,
			BatchID:    plan.Batch.ID,
			Phase:      model.PhaseConditioning,
			Volume:     a.Volume,
			Percentage: percentOf(a.Volume, total),
		}
		if err := s.lots.CreateLinkTx(ctx, tx, &link); err != nil {
			return err
		}

		next := model.TankAssignment{
			TenantID:      tenantID,
			TankID:        a.Tank.ID,
			LotID:         child.ID,
			Phase:         model.PhaseConditioning,
			Status:        model.StatusActive,
			PlannedStart:  req.PlannedStart,
			PlannedEnd:    req.PlannedEnd,
			PlannedVolume: a.Volume,
		}
		if err := s.assignments.CreateTx(ctx, tx, &next); err != nil {
			return err
		}
		if err := s.tanks.OccupyTx(tx, a.Tank.ID, child.ID, model.PhaseConditioning); err != nil {
			return err
		}

		transfer := model.Transfer{
			TenantID:   tenantID,
			BatchID:    plan.Batch.ID,
			LotID:      child.ID,
			FromTankID: st.fromTankID,
			ToTankID:   &a.Tank.ID,
			Kind:       model.TransferKindSplit,
			Volume:     a.Volume,
			Note:       req.Note,
			CreatedBy:  userID,
		}
		if err := s.transfers.CreateTx(ctx, tx, &transfer); err != nil {
			return err
		}

		st.created = append(st.created, next)
		st.touchedTanks[a.Tank.ID] = true
	}

	lot.Status = model.StatusCompleted
	if err := s.lots.UpdateTx(tx, lot); err != nil {
		return err
	}

	st.resultLot = lot
	st.eventType = "split"
	st.summary = fmt.Sprintf("lot %s split into %d lots (%s L total)", lot.Code, len(plan.Allocations), total)
	return nil
}

// ── Derived batch status ─────────────────────────────────────────────────────

// recomputeBatchStatuses rederives each affected batch's status inside the
// running transaction: a batch that directly, or through a structural parent
// lot, still has any planned/active fermentation lot stays fermenting;
// otherwise it advances to conditioning.
func (s *transitionService) recomputeBatchStatuses(tx *gorm.DB, tenantID uuid.UUID, batchIDs []uuid.UUID) error {
	for _, batchID := range batchIDs {
		lots, err := s.lots.FindByBatchTx(tx, tenantID, batchID, "")
		if err != nil {
			return err
		}
		status := model.BatchStatusConditioning
		for i := range lots {
			if lotStillFermenting(&lots[i]) {
				status = model.BatchStatusFermenting
				break
			}
			children, err := s.lots.FindChildrenTx(tx, tenantID, lots[i].ID)
			if err != nil {
				return err
			}
			fermenting := false
			for j := range children {
				if lotStillFermenting(&children[j]) {
					fermenting = true
					break
				}
			}
			if fermenting {
				status = model.BatchStatusFermenting
				break
			}
		}
		if err := s.batches.UpdateStatusTx(tx, batchID, status); err != nil {
			return err
		}
	}
	return nil
}

func lotStillFermenting(l *model.Lot) bool {
	return l.Phase == model.PhaseFermentation &&
		(l.Status == model.StatusPlanned || l.Status == model.StatusActive)
}

func percentOf(volume, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return volume.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
}

// ── Post-commit side writes ──────────────────────────────────────────────────

// runSideWrites fires everything exempt from the all-or-nothing rule: the
// timeline audit event, the tank registry mirror sync, and the optional
// gravity/temperature capture. Each failure is logged and swallowed.
func (s *transitionService) runSideWrites(ctx context.Context, tenantID, userID uuid.UUID, batch *model.Batch, plan *transitionPlan, req dto.TransitionRequest, st *execState) {
	if s.dispatcher != nil {
		lotID := ""
		if st.resultLot != nil {
			lotID = st.resultLot.ID.String()
		}
		if err := s.dispatcher.EnqueueTimeline(ctx, worker.TimelineJobPayload{
			TenantID:  tenantID.String(),
			BatchID:   batch.ID.String(),
			LotID:     lotID,
			EventType: st.eventType,
			Message:   st.summary,
			ActorID:   userID.String(),
		}); err != nil {
			log.Warn().Err(err).Str("batch", batch.Code).Msg("timeline enqueue failed")
		}
		for tankID := range st.touchedTanks {
			if err := s.dispatcher.EnqueueMirrorSync(ctx, worker.MirrorJobPayload{
				TenantID: tenantID.String(),
				TankID:   tankID.String(),
			}); err != nil {
				log.Warn().Err(err).Str("tank", tankID.String()).Msg("mirror sync enqueue failed")
			}
		}
	}

	if req.FinalGravity != nil {
		s.captureMeasurement(ctx, tenantID, userID, batch, st, model.MeasurementFinalGravity, *req.FinalGravity, req.PlannedStart)
	}
	if req.Temperature != nil {
		s.captureMeasurement(ctx, tenantID, userID, batch, st, model.MeasurementTemperature, *req.Temperature, req.PlannedStart)
	}
}

func (s *transitionService) captureMeasurement(ctx context.Context, tenantID, userID uuid.UUID, batch *model.Batch, st *execState, kind string, value decimal.Decimal, takenAt time.Time) {
	if st.resultLot == nil {
		return
	}
	m := model.Measurement{
		TenantID: tenantID,
		BatchID:  batch.ID,
		LotID:    st.resultLot.ID,
		Kind:     kind,
		Value:    value,
		TakenAt:  takenAt,
		TakenBy:  userID,
	}
	if err := s.measurements.Create(ctx, &m); err != nil {
		log.Warn().Err(err).Str("batch", batch.Code).Str("kind", kind).Msg("measurement capture failed")
	}
}

// ── Response / audit reads ───────────────────────────────────────────────────

func (s *transitionService) buildResponse(st *execState) *dto.TransitionResponse {
	resp := &dto.TransitionResponse{Summary: st.summary}
	if st.resultLot != nil {
		resp.Lot = lotToResponse(st.resultLot)
	}
	for i := range st.created {
		a := &st.created[i]
		resp.Assignments = append(resp.Assignments, dto.AssignmentResponse{
			ID:            a.ID.String(),
			TankID:        a.TankID.String(),
			LotID:         a.LotID.String(),
			Phase:         string(a.Phase),
			Status:        a.Status,
			PlannedVolume: a.PlannedVolume,
			PlannedStart:  a.PlannedStart,
			PlannedEnd:    a.PlannedEnd,
		})
	}
	return resp
}

func lotToResponse(l *model.Lot) dto.LotResponse {
	var parentID *string
	if l.ParentLotID != nil {
		id := l.ParentLotID.String()
		parentID = &id
	}
	return dto.LotResponse{
		ID:            l.ID.String(),
		Code:          l.Code,
		Phase:         string(l.Phase),
		Status:        l.Status,
		PlannedVolume: l.PlannedVolume,
		ParentLotID:   parentID,
		IsBlend:       l.IsBlend,
	}
}

func (s *transitionService) ListTransfers(ctx context.Context, tenantID uuid.UUID, filter dto.TransferFilter) ([]dto.TransferListItem, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	transfers, total, err := s.transfers.List(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	items := make([]dto.TransferListItem, 0, len(transfers))
	for _, t := range transfers {
		var from, to *string
		if t.FromTankID != nil {
			id := t.FromTankID.String()
			from = &id
		}
		if t.ToTankID != nil {
			id := t.ToTankID.String()
			to = &id
		}
		items = append(items, dto.TransferListItem{
			ID:         t.ID.String(),
			BatchID:    t.BatchID.String(),
			LotID:      t.LotID.String(),
			FromTankID: from,
			ToTankID:   to,
			Kind:       t.Kind,
			Volume:     t.Volume,
			CreatedAt:  t.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return items, total, nil
}
