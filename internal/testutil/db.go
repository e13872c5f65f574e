package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trust-accounting-backend/internal/models"
)

// NewDB opens a fresh in-memory database migrated with the full schema.
// Connections are capped at one so concurrent test writers serialize the
// way a single sqlite writer does.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.TrustAccount{},
		&models.ClientLedger{},
		&models.TrustTransaction{},
		&models.TransactionAllocation{},
		&models.ReconciliationRecord{},
		&models.BillingPeriodLock{},
		&models.Client{},
		&models.Matter{},
	))

	return db
}
