package repository

import (
	"context"
	"errors"
	"fmt"

	"recon-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrDuplicateManualTransaction = errors.New("manual transaction already exists with same txn_ref, txn_date, and txn_amount")

type ManualTransactionRepository struct {
	db *gorm.DB
}

func NewManualTransactionRepository(db *gorm.DB) *ManualTransactionRepository {
	return &ManualTransactionRepository{db: db}
}

func (r *ManualTransactionRepository) WithTx(tx *gorm.DB) *ManualTransactionRepository {
	return &ManualTransactionRepository{db: tx}
}

// Create inserts one transaction inside a savepoint so a unique violation
// leaves the surrounding transaction usable.
func (r *ManualTransactionRepository) Create(ctx context.Context, m *models.ManualTransaction) error {
	err := r.db.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(m).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateManualTransaction
	}
	if err != nil {
		return fmt.Errorf("create manual transaction: %w", err)
	}
	return nil
}

func (r *ManualTransactionRepository) ListByRun(ctx context.Context, runID uuid.UUID, limit int) ([]models.ManualTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.ManualTransaction
	err := r.db.WithContext(ctx).
		Where("import_run_id = ?", runID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
