package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SearchDetailStatus string

const (
	StatusPending  SearchDetailStatus = "PENDING"
	StatusFound    SearchDetailStatus = "FOUND"
	StatusNotFound SearchDetailStatus = "NOTFOUND"
	StatusFailed   SearchDetailStatus = "FAILED"
	StatusClaimed  SearchDetailStatus = "CLAIMED"
)

// transitions lists the legal next states of each status. FOUND goes back to
// PENDING only through an explicit re-match; FAILED and NOTFOUND are final.
var transitions = map[SearchDetailStatus][]SearchDetailStatus{
	StatusPending: {StatusFound, StatusNotFound, StatusFailed},
	StatusFound:   {StatusClaimed, StatusPending},
}

// CanTransition reports whether a row may move from one status to another.
func CanTransition(from, to SearchDetailStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SearchDetail is one row of an uploaded search batch.
type SearchDetail struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UploadID     uuid.UUID `gorm:"type:uuid;index;not null"`
	LineNo       int
	BoardID      int64  `gorm:"index:idx_search_details_tenant"`
	EmployerID   int64  `gorm:"index:idx_search_details_tenant"`
	ToliID       *int64 `gorm:"index:idx_search_details_tenant"`
	TxnType      string `gorm:"type:varchar(32)"`
	TxnDate      *datatypes.Date
	TxnRef       string          `gorm:"index"`
	TxnAmount    decimal.Decimal `gorm:"type:numeric"`
	RequestNmbr  *string
	MatchedTxnID *int64
	Description  *string
	Status       SearchDetailStatus `gorm:"type:varchar(16);index;not null"`
	CheckedAt    *time.Time
	ClaimedAt    *time.Time
	Error        *string
	CreatedAt    time.Time
}

func (SearchDetail) TableName() string {
	return "transaction_search_details"
}

func (d *SearchDetail) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// MatchedTxnView joins a FOUND row to its matched transaction. It is computed
// on query and never stored.
type MatchedTxnView struct {
	DetailID     uuid.UUID       `json:"detailId"`
	UploadID     uuid.UUID       `json:"uploadId"`
	LineNo       int             `json:"lineNo"`
	TxnRef       string          `json:"txnRef"`
	TxnDate      string          `json:"txnDate"`
	TxnAmount    decimal.Decimal `json:"txnAmount"`
	MatchedTxnID int64           `json:"matchedTxnId"`
	TxnType      string          `json:"txnType"`
	RequestNmbr  *string         `json:"requestNmbr,omitempty"`
	CheckedAt    *time.Time      `json:"checkedAt,omitempty"`
}
