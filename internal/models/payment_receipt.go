package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentReceipt is an upstream worker payment request. Search rows may carry
// its receipt number as request_nmbr / wage_list.
type PaymentReceipt struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ReceiptNumber string          `gorm:"index"`
	BoardID       int64           `gorm:"index"`
	EmployerID    int64           `gorm:"index"`
	Amount        decimal.Decimal `gorm:"type:numeric"`
	Status        string
	CreatedAt     time.Time
}

func (PaymentReceipt) TableName() string {
	return "worker_payment_receipts"
}
