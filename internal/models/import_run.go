package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ImportRunStatus string

const (
	ImportRunNew      ImportRunStatus = "NEW"
	ImportRunImported ImportRunStatus = "IMPORTED"
	ImportRunPartial  ImportRunStatus = "PARTIAL"
	ImportRunFailed   ImportRunStatus = "FAILED"
)

// File type tags recorded on ImportRun.
const (
	FileTypeSearchDetail = "SEARCH_DETAIL"
	FileTypeManualTxn    = "MANUAL_TXN"
)

// ImportRun is the audit and dedup record for one uploaded file.
type ImportRun struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Filename         string
	FileHash         string `gorm:"type:varchar(64);uniqueIndex;not null"`
	FileSizeBytes    int64
	FileType         string `gorm:"type:varchar(32);index"`
	UploadedBy       *string
	BoardID          *int64
	EmployerID       *int64
	ToliID           *int64
	Status           ImportRunStatus `gorm:"type:varchar(16);index;not null"`
	TotalRecords     int
	ProcessedRecords int
	FailedRecords    int
	ErrorMessage     *string
	ReceivedAt       time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
}

func (ImportRun) TableName() string {
	return "import_runs"
}

func (r *ImportRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Finalized reports whether the run has left the NEW state.
func (r *ImportRun) Finalized() bool {
	return r.Status != ImportRunNew
}
