package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditActionMatch   = "MATCH"
	AuditActionRematch = "REMATCH"
	AuditActionReject  = "REJECT"
)

// MatchAuditLog records one state-changing pass over an upload.
type MatchAuditLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UploadID    uuid.UUID `gorm:"type:uuid;index"`
	Action      string    `gorm:"type:varchar(16)"`
	PerformedBy string
	Matched     int
	NotFound    int
	Reason      string
	Details     datatypes.JSON
	CreatedAt   time.Time
}

func (l *MatchAuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
