// Package security implements account registration, password
// authentication with brute-force lockout and cookie-backed sessions.
package security

import (
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

var (
	ErrInvalidCredentials = errors.NewStd("invalid credentials")
	ErrTooManyAttempts    = errors.NewStd("too many failed login attempts")
	ErrInvalidUsername    = errors.NewStd("username must be 1-80 characters without spaces")
	ErrInvalidPassword    = errors.NewStd("password must be 1-72 bytes")
	ErrInvalidEmail       = errors.NewStd("invalid email address")
)

const (
	MaxUsernameLength = 80
	MaxPasswordBytes  = 72 // bcrypt ignores anything longer
	maxEmailLength    = 200
)

// UserStore is the subset of the datastore used for accounts.
type UserStore interface {
	CreateUser(user *datastore.User) error
	GetUserByUsername(username string) (*datastore.User, error)
}

// Accounts registers and authenticates users.
type Accounts struct {
	store       UserStore
	cost        int
	maxAttempts int
	failures    *cache.Cache
	dummyHash   []byte
	log         logger.Logger
}

// NewAccounts returns an Accounts backed by store.
func NewAccounts(store UserStore, settings conf.SecuritySettings) *Accounts {
	cost := settings.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	lockout := settings.LockoutDuration
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}

	// compared against for unknown users so both failure paths cost one bcrypt run
	dummy, _ := bcrypt.GenerateFromPassword([]byte("pneumodetect-dummy-password"), cost)

	return &Accounts{
		store:       store,
		cost:        cost,
		maxAttempts: settings.MaxLoginAttempts,
		failures:    cache.New(lockout, 2*lockout),
		dummyHash:   dummy,
		log:         GetLogger(),
	}
}

// Register creates a regular account and returns its id. A taken username
// or email yields an error matching datastore.ErrUsernameTaken.
func (a *Accounts) Register(username, password, email string) (uint, error) {
	return a.create(username, password, email, false)
}

// RegisterAdmin creates an administrator account.
func (a *Accounts) RegisterAdmin(username, password, email string) (uint, error) {
	return a.create(username, password, email, true)
}

func (a *Accounts) create(username, password, email string, admin bool) (uint, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return 0, err
	}
	if err := ValidatePassword(password); err != nil {
		return 0, err
	}
	emailPtr, err := normalizeEmail(email)
	if err != nil {
		return 0, err
	}

	hash, err := HashPassword(password, a.cost)
	if err != nil {
		return 0, err
	}

	user := &datastore.User{
		Username:     username,
		Email:        emailPtr,
		PasswordHash: hash,
		IsAdmin:      admin,
	}
	if err := a.store.CreateUser(user); err != nil {
		return 0, err
	}

	a.log.Info("account registered", logger.Uint("user_id", user.ID), logger.Bool("admin", admin))
	return user.ID, nil
}

// Authenticate verifies username and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials. Once a username reaches the
// configured number of failures, attempts fail with ErrTooManyAttempts
// until the lockout window expires.
func (a *Accounts) Authenticate(username, password string) (*datastore.User, error) {
	username = strings.TrimSpace(username)
	key := strings.ToLower(username)

	if a.lockedOut(key) {
		a.log.Warn("login rejected, account locked", logger.String("username", username))
		return nil, authError(ErrTooManyAttempts, errors.CategoryLimit)
	}

	user, err := a.store.GetUserByUsername(username)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		a.recordFailure(key)
		return nil, authError(ErrInvalidCredentials, errors.CategoryAuth)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		a.recordFailure(key)
		a.log.Info("login failed", logger.Uint("user_id", user.ID))
		return nil, authError(ErrInvalidCredentials, errors.CategoryAuth)
	}

	a.failures.Delete(key)
	return user, nil
}

func (a *Accounts) lockedOut(key string) bool {
	if a.maxAttempts <= 0 {
		return false
	}
	n, ok := a.failures.Get(key)
	return ok && n.(int) >= a.maxAttempts
}

func (a *Accounts) recordFailure(key string) {
	if a.maxAttempts <= 0 {
		return
	}
	if err := a.failures.Add(key, 1, cache.DefaultExpiration); err != nil {
		// already present; the original expiry is kept
		_, _ = a.failures.IncrementInt(key, 1)
	}
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.New(err).
			Component("security").
			Category(errors.CategorySystem).
			Build()
	}
	return string(hash), nil
}

// ValidateUsername checks length and rejects whitespace.
func ValidateUsername(username string) error {
	if username == "" || len(username) > MaxUsernameLength || strings.ContainsFunc(username, unicode.IsSpace) {
		return validationError(ErrInvalidUsername)
	}
	return nil
}

// ValidatePassword checks that password is non-empty and fits bcrypt.
func ValidatePassword(password string) error {
	if password == "" || len(password) > MaxPasswordBytes {
		return validationError(ErrInvalidPassword)
	}
	return nil
}

func normalizeEmail(email string) (*string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || len(email) > maxEmailLength || strings.ContainsFunc(email, unicode.IsSpace) {
		return nil, validationError(ErrInvalidEmail)
	}
	return &email, nil
}

func validationError(sentinel error) error {
	return errors.New(sentinel).
		Component("security").
		Category(errors.CategoryValidation).
		Build()
}

func authError(sentinel error, category errors.ErrorCategory) error {
	return errors.New(sentinel).
		Component("security").
		Category(category).
		Build()
}
