package service

import (
	"context"
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/apierror"
	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// validateAllocations runs the capacity and occupancy checks for every
// destination tank before the first mutating write. One bad entry aborts the
// whole request with zero side effects.
//
// Stay-in-tank is exempt — it never changes tanks.
func (s *transitionService) validateAllocations(ctx context.Context, tenantID uuid.UUID, movingLotID *uuid.UUID, allocs []allocation) error {
	for _, a := range allocs {
		active, err := s.assignments.FindActiveByTank(ctx, tenantID, a.Tank.ID)
		if err != nil {
			return apierror.New("failed to load tank occupancy")
		}

		// Occupancy: an active assignment belonging to a DIFFERENT lot is a
		// conflict. The moving lot's own prior assignment is excluded.
		for i := range active {
			if movingLotID != nil && active[i].LotID == *movingLotID {
				continue
			}
			occupant := active[i].LotID.String()
			if active[i].Lot != nil {
				occupant = active[i].Lot.Code
			}
			return apierror.NewConflict(apierror.CodeTankOccupied, fmt.Sprintf(
				"tank %s is occupied by lot %s in phase %s",
				a.Tank.Name, occupant, active[i].Phase))
		}

		// Capacity: current active volume + requested must fit.
		current := decimal.Zero
		for i := range active {
			current = current.Add(active[i].PlannedVolume)
		}
		if current.Add(a.Volume).GreaterThan(a.Tank.Capacity) {
			return overflowError(a.Tank, current, a.Volume)
		}
	}
	return nil
}

// validateBlendCapacity re-runs the capacity check against the blend target's
// existing assignment plus the contributed volume. A blend target keeps its
// occupancy and simply absorbs more volume, so occupancy is not checked.
func (s *transitionService) validateBlendCapacity(ctx context.Context, tenantID uuid.UUID, target *model.TankAssignment, contributed decimal.Decimal) error {
	tank, err := s.tanks.FindByID(ctx, tenantID, target.TankID)
	if err != nil {
		return apierror.NewNotFound(apierror.CodeTankNotFound, "blend target tank not found")
	}
	if target.PlannedVolume.Add(contributed).GreaterThan(tank.Capacity) {
		return overflowError(tank, target.PlannedVolume, contributed)
	}
	return nil
}

func overflowError(tank *model.Tank, current, requested decimal.Decimal) error {
	return apierror.NewConflict(apierror.CodeTankOverflow, fmt.Sprintf(
		"tank %s capacity %s exceeded: current volume %s + requested %s",
		tank.Name, tank.Capacity, current, requested))
}
