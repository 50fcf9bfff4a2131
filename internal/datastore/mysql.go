package datastore

import (
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/pneumodetect/internal/conf"

	"github.com/tphakala/pneumodetect/internal/logger"
)

// MySQLStore implements Interface for MySQL
type MySQLStore struct {
	DataStore
}

// Open sets up the MySQL database connection and migrates the schema.
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Database.MySQL
	if cfg.Host == "" || cfg.Database == "" {
		return validationError("mysql host and database are required", "database.mysql", cfg.Host)
	}

	db, err := gorm.Open(gormmysql.Open(mysqlDSN(cfg)), newGormConfig(store.Logger))
	if err != nil {
		store.Logger.Error("failed to open MySQL database",
			logger.String("host", cfg.Host),
			logger.String("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Error(err))
		return dbError(fmt.Errorf("failed to open MySQL database: %w", err), "open", "backend", "mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open")
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := store.attach(db, sqlDB, "mysql"); err != nil {
		return err
	}
	store.Logger.Info("database opened",
		logger.String("backend", "mysql"),
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return nil
}

// mysqlDSN builds the driver DSN. mysql.Config escapes credentials, so
// passwords may contain '@', ':' or '/'.
func mysqlDSN(settings conf.MySQLSettings) string {
	port := settings.Port
	if port == "" {
		port = "3306"
	}

	cfg := mysql.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Host, port)
	cfg.DBName = settings.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Timeout = 10 * time.Second
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Close closes the MySQL database connection.
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
