package services

import (
	"testing"

	"bounty-settlement-system/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Bounty{},
		&models.Submission{},
		&models.EscrowAccount{},
		&models.Disbursement{},
		&models.Identity{},
	))
	return db
}

type testServices struct {
	DB          *gorm.DB
	Ledger      *LedgerService
	Bounties    *BountyService
	Settlement  *SettlementService
	Submissions *SubmissionService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	settlement := NewSettlementService(db, ledger)
	return &testServices{
		DB:          db,
		Ledger:      ledger,
		Bounties:    NewBountyService(db, ledger),
		Settlement:  settlement,
		Submissions: NewSubmissionService(db, settlement),
	}
}
