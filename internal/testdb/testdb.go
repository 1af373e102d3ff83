// Package testdb opens throwaway sqlite databases with the full schema,
// including stand-ins for the externally owned tables.
package testdb

import (
	"path/filepath"
	"testing"

	"recon-service/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "recon.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.Migrate(db))
	require.NoError(t, db.AutoMigrate(&models.BankTransaction{}, &models.PaymentReceipt{}, &models.TenantGrant{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
