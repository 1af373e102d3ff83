package repository

import (
	"context"
	"fmt"
	"strings"

	"recon-service/internal/models"

	"gorm.io/gorm"
)

// ReceiptRepository looks up upstream worker payment receipts.
type ReceiptRepository struct {
	db    *gorm.DB
	table string
}

func NewReceiptRepository(db *gorm.DB, table string) *ReceiptRepository {
	if table == "" {
		table = models.PaymentReceipt{}.TableName()
	}
	return &ReceiptRepository{db: db, table: table}
}

// ReferenceExists reports whether a receipt with this number exists for the
// board and employer.
func (r *ReceiptRepository) ReferenceExists(ctx context.Context, identifier string, boardID, employerID int64) (bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Table(r.table).
		Where("receipt_number = ? AND board_id = ? AND employer_id = ?", identifier, boardID, employerID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup receipt %q: %w", identifier, err)
	}
	return count > 0, nil
}
