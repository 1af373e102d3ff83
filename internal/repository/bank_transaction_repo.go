package repository

import (
	"context"
	"time"

	"recon-service/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BankTransactionRepository reads the unioned bank transaction view.
type BankTransactionRepository struct {
	db    *gorm.DB
	table string
}

// NewBankTransactionRepository reads from table; an empty name means the
// model's default view.
func NewBankTransactionRepository(db *gorm.DB, table string) *BankTransactionRepository {
	if table == "" {
		table = models.BankTransaction{}.TableName()
	}
	return &BankTransactionRepository{db: db, table: table}
}

// FindCandidates lists the transactions a search row with these values would
// match, best candidate first. It mirrors the predicate and ordering used by
// the matching engine.
func (r *BankTransactionRepository) FindCandidates(ctx context.Context, ref string, date time.Time, amount decimal.Decimal) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).Table(r.table+" b").
		Where("b.amount = ?", amount).
		Where("b.txn_date = ?", civilDate(date)).
		Where("COALESCE(TRIM(UPPER(b.txn_ref)), '') = COALESCE(TRIM(UPPER(?)), '')", ref).
		Order("b.txn_date DESC, b.created_at DESC, b.source_txn_id DESC").
		Find(&txs).Error
	return txs, err
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
