package models

import "gorm.io/gorm"

// Migrate creates or updates the tables this service owns. The candidate view,
// receipts, and grants belong to other systems and are left alone.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ImportRun{},
		&ImportError{},
		&SearchDetail{},
		&ManualTransaction{},
		&MatchAuditLog{},
	)
}
