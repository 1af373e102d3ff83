package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BankTransaction is a read-only candidate row from the union of bank
// statement sources (MT940, CAMT53, VAN, manual). The view is owned elsewhere;
// the model exists so it can be read and, in tests, materialised as a table.
type BankTransaction struct {
	SourceTxnID int64  `gorm:"column:source_txn_id;primaryKey"`
	Source      string `gorm:"type:varchar(16)"`
	Type        *string
	TxnDate     *datatypes.Date
	Amount      decimal.Decimal `gorm:"type:numeric"`
	TxnRef      *string
	DrCrFlag    string `gorm:"type:varchar(2)"`
	Description *string
	CreatedAt   time.Time
}

func (BankTransaction) TableName() string {
	return "vw_all_bank_transactions"
}
