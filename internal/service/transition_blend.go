package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// executeBlend merges the moving batch's contribution into an existing target
// lot shared with other batches. The capacity check ran before the
// transaction — a would-be overflow aborts before any release step commits.
//
// The moving batch keeps its historical fermentation join row and gains a new
// conditioning row on the target (dual lineage). The target keeps its
// existing occupancy and simply absorbs more volume: no new assignment.
func (s *transitionService) executeBlend(ctx context.Context, tx *gorm.DB, tenantID, userID uuid.UUID, plan *transitionPlan, req dto.TransitionRequest, targetAssignment *model.TankAssignment, st *execState) error {
	moving := plan.Lot
	target := plan.TargetLot
	contributed := plan.ContributedVolume

	// 1. Release the moving lot's fermentation assignments. The target's tank
	// is the only destination and is never released.
	destinations := map[uuid.UUID]bool{targetAssignment.TankID: true}
	if err := s.closeFermentationAssignments(ctx, tx, tenantID, moving.ID, req.PlannedStart, destinations, st); err != nil {
		return err
	}

	// 2. Retire the source lot when it is not the target itself. Its join row
	// survives as the historical fermentation link.
	if moving.ID != target.ID {
		moving.Status = model.StatusCompleted
		if err := s.lots.UpdateTx(tx, moving); err != nil {
			return err
		}
	}

	// 3. Link the moving batch to the target, then recompute percentages
	// across the target's rows from volumes. Rows of other lots are left
	// untouched.
	newLink := model.LotBatch{
		TenantID: tenantID,
		LotID:    target.ID,
		BatchID:  plan.Batch.ID,
		Phase:    model.PhaseConditioning,
		Volume:   contributed,
	}
	total := contributed
	for i := range plan.TargetLinks {
		total = total.Add(plan.TargetLinks[i].Volume)
	}
	newLink.Percentage = percentOf(contributed, total)
	if err := s.lots.CreateLinkTx(ctx, tx, &newLink); err != nil {
		return err
	}
	for i := range plan.TargetLinks {
		lb := &plan.TargetLinks[i]
		lb.Percentage = percentOf(lb.Volume, total)
		if err := s.lots.UpdateLinkTx(tx, lb); err != nil {
			return err
		}
	}

	// 4. Apply the blend-naming convention once.
	if !strings.HasPrefix(target.Code, BlendCodePrefix) {
		code, err := s.codes.NextBlendCode(ctx, tenantID)
		if err != nil {
			return apierror.New("blend code generation failed")
		}
		target.Code = code
		now := time.Now().UTC()
		target.IsBlend = true
		target.BlendedAt = &now
	}
	target.PlannedVolume = target.PlannedVolume.Add(contributed)
	if err := s.lots.UpdateTx(tx, target); err != nil {
		return err
	}

	// 5. The target's assignment absorbs the contributed volume.
	if err := s.assignments.AddVolumeTx(tx, targetAssignment.ID, contributed); err != nil {
		return err
	}

	transfer := model.Transfer{
		TenantID:   tenantID,
		BatchID:    plan.Batch.ID,
		LotID:      target.ID,
		FromTankID: st.fromTankID,
		ToTankID:   &targetAssignment.TankID,
		Kind:       model.TransferKindBlend,
		Volume:     contributed,
		Note:       req.Note,
		CreatedBy:  userID,
	}
	if err := s.transfers.CreateTx(ctx, tx, &transfer); err != nil {
		return err
	}

	st.resultLot = target
	st.touchedTanks[targetAssignment.TankID] = true
	st.eventType = "blend"
	st.summary = fmt.Sprintf("batch %s blended into lot %s (%s L)", plan.Batch.Code, target.Code, contributed)

	// 6. Every batch sharing the target lot gets its status rederived.
	st.affectedBatchIDs = blendAffectedBatches(plan)
	return s.recomputeBatchStatuses(tx, tenantID, st.affectedBatchIDs)
}

func blendAffectedBatches(plan *transitionPlan) []uuid.UUID {
	seen := map[uuid.UUID]bool{plan.Batch.ID: true}
	ids := []uuid.UUID{plan.Batch.ID}
	for i := range plan.TargetLinks {
		id := plan.TargetLinks[i].BatchID
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
