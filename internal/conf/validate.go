// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	BackendTFLite = "tflite"
	BackendONNX   = "onnx"

	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	DatabaseSQLite = "sqlite"
	DatabaseMySQL  = "mysql"

	// MinSessionSecretLength matches the 32 byte HMAC key recommended by gorilla/securecookie.
	MinSessionSecretLength = 32
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. Model path
// presence is checked by ValidateModelSettings; only serve and classify
// need a model.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateWebServerSettings,
		validateModelShape,
		validateIntakeSettings,
		validateDatabaseSettings,
		validateSecuritySettings,
		validateSentrySettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidateModelSettings checks that a model is configured. It does not
// open the file; the classifier reports unreadable models.
func ValidateModelSettings(settings *Settings) error {
	if strings.TrimSpace(settings.Model.Path) == "" {
		return ValidationError{Errors: []string{
			"model.path is required (set it in config.yaml, with --model or PNEUMODETECT_MODEL_PATH)",
		}}
	}
	return nil
}

func validateWebServerSettings(settings *Settings) error {
	port, err := strconv.Atoi(settings.WebServer.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver.port %q is not a valid port", settings.WebServer.Port)
	}
	if settings.WebServer.ReadTimeout < 0 || settings.WebServer.WriteTimeout < 0 {
		return fmt.Errorf("webserver timeouts must not be negative")
	}
	if settings.WebServer.RateLimit < 0 || settings.WebServer.RateBurst < 0 {
		return fmt.Errorf("webserver rate limit must not be negative")
	}
	return nil
}

func validateModelShape(settings *Settings) error {
	m := &settings.Model
	if m.Backend != "" && m.Backend != BackendTFLite && m.Backend != BackendONNX {
		return fmt.Errorf("model.backend must be %q or %q, got %q", BackendTFLite, BackendONNX, m.Backend)
	}
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("model.layout must be %q or %q, got %q", LayoutNHWC, LayoutNCHW, m.Layout)
	}
	if m.InputSize < 1 || m.InputSize > 4096 {
		return fmt.Errorf("model.inputsize must be between 1 and 4096, got %d", m.InputSize)
	}
	if m.Threads < 0 {
		return fmt.Errorf("model.threads must not be negative")
	}
	if m.Outputs != 1 && m.Outputs != 2 {
		return fmt.Errorf("model.outputs must be 1 or 2, got %d", m.Outputs)
	}
	return nil
}

func validateIntakeSettings(settings *Settings) error {
	in := &settings.Intake
	if strings.TrimSpace(in.UploadDir) == "" {
		return fmt.Errorf("intake.uploaddir must not be empty")
	}
	if len(in.AllowedExtensions) == 0 {
		return fmt.Errorf("intake.allowedextensions must list at least one extension")
	}
	if slices.Contains(in.AllowedExtensions, "") {
		return fmt.Errorf("intake.allowedextensions must not contain empty entries")
	}
	if in.MaxUploadSize <= 0 {
		return fmt.Errorf("intake.maxuploadsize must be positive")
	}
	return nil
}

func validateDatabaseSettings(settings *Settings) error {
	db := &settings.Database
	switch db.Type {
	case DatabaseSQLite:
		if db.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path must not be empty")
		}
	case DatabaseMySQL:
		if db.MySQL.Host == "" || db.MySQL.Database == "" || db.MySQL.Username == "" {
			return fmt.Errorf("database.mysql requires host, username and database")
		}
	default:
		return fmt.Errorf("database.type must be %q or %q, got %q", DatabaseSQLite, DatabaseMySQL, db.Type)
	}
	return nil
}

func validateSecuritySettings(settings *Settings) error {
	sec := &settings.Security
	if len(sec.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("security.sessionsecret must be at least %d characters", MinSessionSecretLength)
	}
	if sec.BcryptCost < bcrypt.MinCost || sec.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("security.bcryptcost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if sec.MaxLoginAttempts < 0 {
		return fmt.Errorf("security.maxloginattempts must not be negative")
	}
	if sec.MaxLoginAttempts > 0 && sec.LockoutDuration <= 0 {
		return fmt.Errorf("security.lockoutduration must be positive when lockout is enabled")
	}
	return nil
}

func validateSentrySettings(settings *Settings) error {
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}
