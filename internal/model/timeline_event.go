package model

import (
	"time"

	"github.com/google/uuid"
)

// TimelineEvent is an audit entry appended per logical transition. Events are
// produced fire-and-forget through the worker queue — the engine never waits
// on them and never reads them back.
type TimelineEvent struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	BatchID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	LotID     *uuid.UUID `gorm:"type:uuid"`
	EventType string     `gorm:"type:varchar(40);not null"` // e.g. "phase_transition", "blend", "split"
	Message   string     `gorm:"not null"`
	ActorID   uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt time.Time
}
