package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/pneumodetect/internal/logger"
)

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
}

// Open sets up the SQLite database connection and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Database.SQLite.Path
	if path == "" {
		return validationError("sqlite path must not be empty", "database.sqlite.path", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return dbError(err, "resolve_sqlite_path")
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return dbError(err, "create_sqlite_dir")
	}

	// foreign keys are off by default in SQLite
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", absPath)

	db, err := gorm.Open(sqlite.Open(dsn), newGormConfig(store.Logger))
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open", "backend", "sqlite")
	}

	// a single writer avoids SQLITE_BUSY under concurrent requests
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := store.attach(db, sqlDB, "sqlite"); err != nil {
		return err
	}
	store.Logger.Info("database opened",
		logger.String("backend", "sqlite"),
		logger.String("path", absPath))
	return nil
}

// Close closes the SQLite database connection.
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
