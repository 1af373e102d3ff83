package repository

import (
	"context"

	"recon-service/internal/models"

	"gorm.io/gorm"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GrantsForUser returns the user's grants, highest priority first.
func (r *TenantRepository) GrantsForUser(ctx context.Context, userID string) ([]models.TenantGrant, error) {
	var grants []models.TenantGrant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("priority DESC, id ASC").
		Find(&grants).Error
	return grants, err
}
