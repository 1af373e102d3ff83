package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ManualTransaction is a bank transaction keyed in by an operator, either one
// at a time or through a CSV upload.
type ManualTransaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ImportRunID *uuid.UUID      `gorm:"type:uuid;index"`
	TxnRef      string          `gorm:"uniqueIndex:uniq_manual_txn"`
	TxnDate     *datatypes.Date `gorm:"uniqueIndex:uniq_manual_txn"`
	TxnAmount   decimal.Decimal `gorm:"type:numeric;uniqueIndex:uniq_manual_txn"`
	DrCrFlag    string          `gorm:"type:varchar(2)"`
	TxnType     *string         `gorm:"type:varchar(16)"`
	Payer       *string
	Description *string
	IsMapped    bool
	CreatedBy   *string
	UpdatedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ManualTransaction) TableName() string {
	return "manual_transaction_uploads"
}

func (m *ManualTransaction) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
