package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenInMemorySQLite opens a private in-memory SQLite database and migrates the
// campaign schema. The database lives only as long as the returned handle.
func OpenInMemorySQLite(log *zap.Logger) (*gorm.DB, error) {
	name := "campaignboard-" + uuid.NewString()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// A shared-cache memory database is dropped when its last connection closes.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(0)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.AutoMigrate(&campaignRecord{}, &postRecord{}, &activityRecord{}); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("database initialized", zap.String("name", name))
	}

	return db, nil
}
