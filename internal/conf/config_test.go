package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// writeConfig writes body to a config.yaml in a temp dir and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// loadFrom loads settings from a config file body with defaults applied.
func loadFrom(t *testing.T, body string) (*Settings, error) {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return Load(v, writeConfig(t, body))
}

func TestLoadDefaults(t *testing.T) {
	settings, err := loadFrom(t, "security:\n  sessionsecret: "+testSecret+"\n")
	require.NoError(t, err)

	assert.Equal(t, "8080", settings.WebServer.Port)
	assert.Equal(t, DefaultInputSize, settings.Model.InputSize)
	assert.Equal(t, LayoutNHWC, settings.Model.Layout)
	assert.Empty(t, settings.Model.Path, "model path must not have a default")
	assert.Equal(t, []string{"jpg", "jpeg", "png"}, settings.Intake.AllowedExtensions)
	assert.Equal(t, int64(DefaultMaxUploadSize), settings.Intake.MaxUploadSize)
	assert.Equal(t, DatabaseSQLite, settings.Database.Type)
	assert.Equal(t, 15*time.Minute, settings.Security.LockoutDuration)
	assert.True(t, settings.Security.CSRF)
	assert.NotEmpty(t, settings.ConfigFile)
}

func TestLoadNormalizesValues(t *testing.T) {
	settings, err := loadFrom(t, `
model:
  backend: " ONNX "
  layout: NCHW
intake:
  allowedextensions: [".PNG", "Jpg"]
database:
  type: SQLite
security:
  sessionsecret: `+testSecret+`
`)
	require.NoError(t, err)

	assert.Equal(t, BackendONNX, settings.Model.Backend)
	assert.Equal(t, LayoutNCHW, settings.Model.Layout)
	assert.Equal(t, []string{"png", "jpg"}, settings.Intake.AllowedExtensions)
	assert.Equal(t, DatabaseSQLite, settings.Database.Type)
}

func TestLoadGeneratesAndPersistsSessionSecret(t *testing.T) {
	path := writeConfig(t, "webserver:\n  port: \"9090\"\n")

	v, err := New()
	require.NoError(t, err)
	first, err := Load(v, path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(first.Security.SessionSecret), MinSessionSecretLength)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), first.Security.SessionSecret)

	v2, err := New()
	require.NoError(t, err)
	second, err := Load(v2, path)
	require.NoError(t, err)
	assert.Equal(t, first.Security.SessionSecret, second.Security.SessionSecret)
	assert.Equal(t, "9090", second.WebServer.Port)
}

func TestPersistedSecretLeavesOtherValuesOut(t *testing.T) {
	t.Setenv("PNEUMODETECT_DATABASE_MYSQL_PASSWORD", "env-only-db-password")
	t.Setenv("PNEUMODETECT_SENTRY_DSN", "https://key@sentry.example.com/1")
	t.Setenv("PNEUMODETECT_MODEL_PATH", "/opt/models/from-env.tflite")

	tests := []struct {
		name string
		body string
	}{
		{"no security section", "# local overrides\nwebserver:\n  port: \"9090\" # public port\n"},
		{"empty secret", "webserver:\n  port: \"9090\"\nsecurity:\n  sessionsecret: \"\"\n  bcryptcost: 11\n"},
		{"mixed case key", "webserver:\n  port: \"9090\"\nSecurity:\n  sessionSecret: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			v, err := New()
			require.NoError(t, err)
			settings, err := Load(v, path)
			require.NoError(t, err)
			require.Equal(t, "env-only-db-password", settings.Database.MySQL.Password)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			written := string(data)
			assert.Contains(t, written, settings.Security.SessionSecret)
			assert.Equal(t, 1, strings.Count(strings.ToLower(written), "sessionsecret"))
			assert.NotContains(t, written, "env-only-db-password")
			assert.NotContains(t, written, "sentry.example.com")
			assert.NotContains(t, written, "from-env.tflite")
			assert.NotContains(t, written, "allowedextensions", "defaults stay out of the file")

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			v2, err := New()
			require.NoError(t, err)
			again, err := Load(v2, path)
			require.NoError(t, err)
			assert.Equal(t, settings.Security.SessionSecret, again.Security.SessionSecret)
			assert.Equal(t, "9090", again.WebServer.Port)
		})
	}

	t.Run("comments survive", func(t *testing.T) {
		path := writeConfig(t, tests[0].body)
		v, err := New()
		require.NoError(t, err)
		_, err = Load(v, path)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# local overrides")
		assert.Contains(t, string(data), "# public port")
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PNEUMODETECT_MODEL_PATH", "/opt/models/pneumonia.tflite")
	t.Setenv("PNEUMODETECT_WEBSERVER_PORT", "9999")
	t.Setenv("PNEUMODETECT_INTAKE_MINFREEMB", "0")

	settings, err := loadFrom(t, "security:\n  sessionsecret: "+testSecret+"\n")
	require.NoError(t, err)

	assert.Equal(t, "/opt/models/pneumonia.tflite", settings.Model.Path)
	assert.Equal(t, "9999", settings.WebServer.Port)
	assert.Zero(t, settings.Intake.MinFreeMB)
	require.NoError(t, ValidateModelSettings(settings))
}

func TestInvalidEnvironmentReported(t *testing.T) {
	t.Setenv("PNEUMODETECT_MODEL_BACKEND", "pytorch")
	t.Setenv("PNEUMODETECT_SECURITY_SESSIONSECRET", "short")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PNEUMODETECT_MODEL_BACKEND")
	assert.NotContains(t, err.Error(), "short", "secrets must not be echoed")
}

func TestValidateModelSettingsRequiresPath(t *testing.T) {
	t.Parallel()

	err := ValidateModelSettings(&Settings{})
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors[0], "model.path")
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		s := &Settings{}
		s.WebServer.Port = "8080"
		s.Model.InputSize = 224
		s.Model.Layout = LayoutNHWC
		s.Model.Outputs = 1
		s.Intake.UploadDir = "uploads"
		s.Intake.AllowedExtensions = []string{"png"}
		s.Intake.MaxUploadSize = 1024
		s.Database.Type = DatabaseSQLite
		s.Database.SQLite.Path = "test.db"
		s.Security.SessionSecret = testSecret
		s.Security.BcryptCost = 10
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"bad port", func(s *Settings) { s.WebServer.Port = "http" }, "webserver.port"},
		{"bad backend", func(s *Settings) { s.Model.Backend = "pytorch" }, "model.backend"},
		{"bad layout", func(s *Settings) { s.Model.Layout = "hwc" }, "model.layout"},
		{"zero input size", func(s *Settings) { s.Model.InputSize = 0 }, "model.inputsize"},
		{"three outputs", func(s *Settings) { s.Model.Outputs = 3 }, "model.outputs"},
		{"no extensions", func(s *Settings) { s.Intake.AllowedExtensions = nil }, "allowedextensions"},
		{"unknown database", func(s *Settings) { s.Database.Type = "postgres" }, "database.type"},
		{"mysql without host", func(s *Settings) { s.Database.Type = DatabaseMySQL }, "database.mysql"},
		{"short secret", func(s *Settings) { s.Security.SessionSecret = "abc" }, "sessionsecret"},
		{"bcrypt cost too high", func(s *Settings) { s.Security.BcryptCost = 40 }, "bcryptcost"},
		{"lockout without duration", func(s *Settings) { s.Security.MaxLoginAttempts = 3 }, "lockoutduration"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.Security.SessionSecret = testSecret
	s.Database.MySQL.Password = "hunter2"
	s.Sentry.DSN = "https://key@sentry.example.com/1"
	s.Intake.AllowedExtensions = []string{"png"}

	r := s.Redacted()
	assert.Equal(t, "[REDACTED]", r.Security.SessionSecret)
	assert.Equal(t, "[REDACTED]", r.Database.MySQL.Password)
	assert.Equal(t, "[REDACTED]", r.Sentry.DSN)

	r.Intake.AllowedExtensions[0] = "gif"
	assert.Equal(t, "png", s.Intake.AllowedExtensions[0], "redacted copy must not alias the original")
	assert.Equal(t, testSecret, s.Security.SessionSecret)
}

func TestGenerateRandomSecret(t *testing.T) {
	t.Parallel()

	a, b := GenerateRandomSecret(), GenerateRandomSecret()
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.False(t, strings.ContainsAny(a, "+/="))
}
