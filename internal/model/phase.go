package model

// Phase is a production stage of a Lot. Stored as text; ordering is defined
// by rank so that phase changes can be checked for monotonicity.
type Phase string

const (
	PhaseFermentation Phase = "fermentation"
	PhaseConditioning Phase = "conditioning"
)

var phaseRank = map[Phase]int{
	PhaseFermentation: 1,
	PhaseConditioning: 2,
}

// Rank returns the ordinal position of the phase; 0 for unknown values.
func (p Phase) Rank() int { return phaseRank[p] }

// Before reports whether p precedes other in the production sequence.
func (p Phase) Before(other Phase) bool { return p.Rank() < other.Rank() }

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.Rank() > 0 }

// Entity status values shared by Lot and TankAssignment.
const (
	StatusPlanned   = "planned"
	StatusActive    = "active"
	StatusCompleted = "completed"
)
