package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Import error codes.
const (
	ImportErrorValidation = "VALIDATION"
	ImportErrorDuplicate  = "DUPLICATE"
	ImportErrorRejected   = "REJECTED"
)

type ImportError struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ImportRunID uuid.UUID `gorm:"type:uuid;index;not null"`
	LineNo      int
	Code        string `gorm:"type:varchar(16)"`
	Message     string
	CreatedAt   time.Time
}

func (ImportError) TableName() string {
	return "import_errors"
}

func (e *ImportError) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
