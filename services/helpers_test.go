package services

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"proof-reward-system/models"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// unique name per test keeps shared-cache memory databases isolated
	counter := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", counter)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

func setupTestRepository(t *testing.T) (*SubmissionRepository, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	return NewSubmissionRepository(setupTestDB(t), clock), clock
}

func newSubmission(wallet string) *models.Submission {
	return &models.Submission{
		WalletAddress: wallet,
		Name:          "Ada Lovelace",
		ProofLink:     "https://example.org/proof/" + wallet,
	}
}

func strPtr(s string) *string { return &s }
