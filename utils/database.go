// utils/database.go
package utils

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDatabase connects with the configured driver. SQLite serves single-node deployments
// and databases inherited from the previous service; postgres serves everything else.
func OpenDatabase(driver, url string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(url), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return db, nil

	case "sqlite":
		db, err := gorm.Open(sqlite.Open(sqliteDSN(url)), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// one writer at a time; waiting beats SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func sqliteDSN(url string) string {
	if strings.Contains(url, "_pragma=") || strings.Contains(url, "mode=memory") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
