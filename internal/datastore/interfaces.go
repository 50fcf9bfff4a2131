// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// Interface abstracts the account and history storage.
type Interface interface {
	Open() error
	Close() error

	// Accounts
	CreateUser(user *User) error
	GetUser(id uint) (*User, error)
	GetUserByUsername(username string) (*User, error)

	// History
	Record(userID *uint, filename, result string, confidence float64) (uint, error)
	ListFor(userID uint) ([]Prediction, error)
	Get(id uint) (*Prediction, error)
	GetOwned(id, userID uint) (*Prediction, error)
}

// DataStore implements the shared part of Interface on top of GORM. The
// driver specific stores embed it and provide Open and Close.
type DataStore struct {
	DB       *gorm.DB
	Settings *conf.Settings
	Logger   logger.Logger
}

// New returns the store selected by settings.Database.Type. The store is
// not opened.
func New(settings *conf.Settings) (Interface, error) {
	base := DataStore{Settings: settings, Logger: GetLogger()}
	switch settings.Database.Type {
	case conf.DatabaseSQLite, "":
		return &SQLiteStore{DataStore: base}, nil
	case conf.DatabaseMySQL:
		return &MySQLStore{DataStore: base}, nil
	default:
		return nil, validationError("unsupported database type", "database.type", settings.Database.Type)
	}
}

// CreateUser inserts user. A duplicate username or email yields ErrUsernameTaken.
func (ds *DataStore) CreateUser(user *User) error {
	if ds.DB == nil {
		return dbError(ErrNotOpen, "create_user")
	}
	if user == nil || strings.TrimSpace(user.Username) == "" {
		return validationError("username must not be empty", "username", "")
	}
	if user.PasswordHash == "" {
		return validationError("password hash must not be empty", "password_hash", "")
	}

	if err := ds.DB.Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return conflictError(user.Username)
		}
		return dbError(err, "create_user")
	}

	ds.Logger.Info("user created",
		logger.Uint("user_id", user.ID),
		logger.Bool("admin", user.IsAdmin))
	return nil
}

// GetUser returns the user with the given id.
func (ds *DataStore) GetUser(id uint) (*User, error) {
	if ds.DB == nil {
		return nil, dbError(ErrNotOpen, "get_user")
	}
	var user User
	if err := ds.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("user", id)
		}
		return nil, dbError(err, "get_user", "user_id", id)
	}
	return &user, nil
}

// GetUserByUsername returns the user with the given username. Matching is exact.
func (ds *DataStore) GetUserByUsername(username string) (*User, error) {
	if ds.DB == nil {
		return nil, dbError(ErrNotOpen, "get_user_by_username")
	}
	var user User
	if err := ds.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("user", username)
		}
		return nil, dbError(err, "get_user_by_username")
	}
	return &user, nil
}

// Record stores a prediction and returns its id. userID is nil for
// anonymous predictions.
func (ds *DataStore) Record(userID *uint, filename, result string, confidence float64) (uint, error) {
	if ds.DB == nil {
		return 0, dbError(ErrNotOpen, "record_prediction")
	}
	if filename == "" {
		return 0, validationError("filename must not be empty", "filename", filename)
	}
	if result != ResultPneumonia && result != ResultNormal {
		return 0, validationError(fmt.Sprintf("result must be %q or %q", ResultPneumonia, ResultNormal), "result", result)
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 100 {
		return 0, validationError("confidence must be within [0,100]", "confidence", confidence)
	}

	p := Prediction{
		UserID:     userID,
		Filename:   filename,
		Result:     result,
		Confidence: &confidence,
	}
	if err := ds.DB.Create(&p).Error; err != nil {
		return 0, dbError(err, "record_prediction")
	}

	ds.Logger.Debug("prediction recorded",
		logger.Uint("prediction_id", p.ID),
		logger.Bool("anonymous", userID == nil),
		logger.String("result", result))
	return p.ID, nil
}

// ListFor returns every prediction owned by userID, newest first. Ties on
// created_at are broken by descending id so the order is deterministic.
func (ds *DataStore) ListFor(userID uint) ([]Prediction, error) {
	if ds.DB == nil {
		return nil, dbError(ErrNotOpen, "list_predictions")
	}
	var predictions []Prediction
	if err := ds.DB.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&predictions).Error; err != nil {
		return nil, dbError(err, "list_predictions", "user_id", userID)
	}
	return predictions, nil
}

// Get returns the prediction with the given id regardless of owner.
func (ds *DataStore) Get(id uint) (*Prediction, error) {
	if ds.DB == nil {
		return nil, dbError(ErrNotOpen, "get_prediction")
	}
	var p Prediction
	if err := ds.DB.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("prediction", id)
		}
		return nil, dbError(err, "get_prediction", "prediction_id", id)
	}
	return &p, nil
}

// GetOwned returns the prediction only if it belongs to userID. Records
// owned by anyone else are reported as not found.
func (ds *DataStore) GetOwned(id, userID uint) (*Prediction, error) {
	if ds.DB == nil {
		return nil, dbError(ErrNotOpen, "get_owned_prediction")
	}
	var p Prediction
	if err := ds.DB.Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("prediction", id)
		}
		return nil, dbError(err, "get_owned_prediction", "prediction_id", id)
	}
	return &p, nil
}

// closeDB closes the underlying sql.DB.
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return dbError(ErrNotOpen, "close")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	ds.DB = nil
	return nil
}
