package datastore

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/pneumodetect/internal/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is considered slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// newGormConfig returns the GORM configuration shared by all backends.
// Timestamps are stored in UTC and driver errors are translated so unique
// violations surface as gorm.ErrDuplicatedKey.
func newGormConfig(log logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log.Module("gorm"), DefaultSlowQueryThreshold),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, log logger.Logger, backend string) error {
	start := time.Now()
	if err := db.AutoMigrate(&User{}, &Prediction{}); err != nil {
		return dbError(err, "auto_migrate", "backend", backend)
	}
	log.Debug("schema migrated",
		logger.String("backend", backend),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// attach migrates db and only then makes it the store's connection. When
// migration fails the connection is closed and the store stays unopened.
func (ds *DataStore) attach(db *gorm.DB, sqlDB *sql.DB, backend string) error {
	if err := performAutoMigration(db, ds.Logger, backend); err != nil {
		if closeErr := sqlDB.Close(); closeErr != nil {
			ds.Logger.Warn("failed to close database after migration error",
				logger.String("backend", backend),
				logger.Error(closeErr))
		}
		return err
	}
	ds.DB = db
	return nil
}
