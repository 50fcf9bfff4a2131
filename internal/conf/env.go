// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PNEUMODETECT_MODEL_PATH.
const EnvPrefix = "PNEUMODETECT"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// All other keys are still reachable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "PNEUMODETECT_DEBUG", validateEnvBool},
		{"webserver.port", "PNEUMODETECT_WEBSERVER_PORT", validateEnvPort},

		{"model.path", "PNEUMODETECT_MODEL_PATH", validateEnvPath},
		{"model.backend", "PNEUMODETECT_MODEL_BACKEND", validateEnvBackend},
		{"model.threads", "PNEUMODETECT_MODEL_THREADS", validateEnvThreads},
		{"model.usexnnpack", "PNEUMODETECT_MODEL_USEXNNPACK", validateEnvBool},
		{"model.onnxlibrary", "PNEUMODETECT_MODEL_ONNXLIBRARY", validateEnvPath},

		{"intake.uploaddir", "PNEUMODETECT_INTAKE_UPLOADDIR", nil},

		{"database.type", "PNEUMODETECT_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "PNEUMODETECT_DATABASE_SQLITE_PATH", nil},
		{"database.mysql.password", "PNEUMODETECT_DATABASE_MYSQL_PASSWORD", nil},

		{"security.sessionsecret", "PNEUMODETECT_SECURITY_SESSIONSECRET", validateEnvSecret},
		{"security.securecookies", "PNEUMODETECT_SECURITY_SECURECOOKIES", validateEnvBool},

		{"sentry.dsn", "PNEUMODETECT_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				// secrets are never echoed back
				shown := envValue
				if strings.Contains(binding.ConfigKey, "secret") {
					shown = "[REDACTED]"
				}
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, shown, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch strings.ToLower(value) {
	case BackendTFLite, BackendONNX:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", BackendTFLite, BackendONNX)
	}
}

func validateEnvDatabaseType(value string) error {
	switch strings.ToLower(value) {
	case DatabaseSQLite, DatabaseMySQL:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", DatabaseSQLite, DatabaseMySQL)
	}
}

func validateEnvSecret(value string) error {
	if len(value) < MinSessionSecretLength {
		return fmt.Errorf("must be at least %d characters", MinSessionSecretLength)
	}
	return nil
}

// validateEnvPath rejects relative paths and traversal. Missing files are
// reported by the component that opens them.
func validateEnvPath(value string) error {
	cleanedPath := filepath.Clean(value)
	if !filepath.IsAbs(cleanedPath) {
		return fmt.Errorf("path must be absolute, got relative path: %s", cleanedPath)
	}
	for _, part := range strings.Split(cleanedPath, string(os.PathSeparator)) {
		if part == ".." {
			return fmt.Errorf("path traversal detected in cleaned path: %s", cleanedPath)
		}
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
