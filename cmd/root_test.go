package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pneumodetect/cmd/createdb"
	"github.com/tphakala/pneumodetect/internal/buildinfo"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

// These tests replace the global logger and read the environment, so they
// do not run in parallel.

func writeConfig(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`
webserver:
  port: "18080"
intake:
  uploaddir: %q
database:
  type: sqlite
  sqlite:
    path: %q
security:
  sessionsecret: %q
  bcryptcost: 4
logging:
  console: false
observability:
  enabled: false
`, filepath.Join(dir, "uploads"), filepath.Join(dir, "test.db"), testSecret)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, dir
}

func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := RootCommand(&buildinfo.Context{Version: "v0.0.0-test", BuildDate: "2026-10-01"})

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func openStore(t *testing.T, dir string) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Database.Type = conf.DatabaseSQLite
	settings.Database.SQLite.Path = filepath.Join(dir, "test.db")

	ds, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestVersionNeedsNoConfig(t *testing.T) {
	out, _, err := execute(t, "", "version", "--config", "/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "PneumoDetect v0.0.0-test (built 2026-10-01)\n", out)
}

func TestMissingConfigFileFails(t *testing.T) {
	_, _, err := execute(t, "", "config", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfigPrintsRedactedSettings(t *testing.T) {
	configPath, _ := writeConfig(t)

	out, _, err := execute(t, "", "config", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, out, "# "+configPath)
	assert.Contains(t, out, "sessionsecret: '[REDACTED]'")
	assert.NotContains(t, out, testSecret)
	assert.Contains(t, out, "bcryptcost: 4")
	assert.Contains(t, out, "debug: false")
}

func TestDebugFlagOverridesConfig(t *testing.T) {
	configPath, _ := writeConfig(t)

	out, _, err := execute(t, "", "config", "--config", configPath, "--debug")
	require.NoError(t, err)
	assert.Contains(t, out, "debug: true")
}

func TestCreateDBSeedsAdminOnce(t *testing.T) {
	configPath, dir := writeConfig(t)
	t.Setenv(createdb.AdminPasswordEnv, "")

	out, _, err := execute(t, "", "createdb", "--config", configPath,
		"--admin-user", "root", "--admin-email", "root@example.com", "--admin-password", "correct-horse")
	require.NoError(t, err)
	assert.Contains(t, out, "Database schema is up to date (sqlite)")
	assert.Contains(t, out, `Created administrator "root"`)

	out, _, err = execute(t, "", "createdb", "--config", configPath,
		"--admin-user", "root", "--admin-password", "another-password")
	require.NoError(t, err)
	assert.Contains(t, out, `User "root" already exists, skipping`)

	user, err := openStore(t, dir).GetUserByUsername("root")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	require.NotNil(t, user.Email)
	assert.Equal(t, "root@example.com", *user.Email)
}

func TestCreateDBPasswordFromEnvironment(t *testing.T) {
	configPath, dir := writeConfig(t)
	t.Setenv(createdb.AdminPasswordEnv, "from-the-environment")

	out, _, err := execute(t, "", "createdb", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `Created administrator "admin"`)

	user, err := openStore(t, dir).GetUserByUsername("admin")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
}

func TestCreateDBWithoutPasswordOnlyMigrates(t *testing.T) {
	configPath, dir := writeConfig(t)
	t.Setenv(createdb.AdminPasswordEnv, "")

	out, _, err := execute(t, "", "createdb", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No admin password given")

	_, err = openStore(t, dir).GetUserByUsername("admin")
	assert.True(t, errors.Is(err, datastore.ErrNotFound))
}

func TestUserAdd(t *testing.T) {
	configPath, dir := writeConfig(t)

	out, stderr, err := execute(t, "hunter2-hunter2\n", "useradd", "alice", "--email", "alice@example.com", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Password: ")
	assert.Contains(t, out, `Created user "alice"`)

	out, _, err = execute(t, "s3cret\r\n", "useradd", "bob", "--admin", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `Created administrator "bob"`)

	_, _, err = execute(t, "whatever\n", "useradd", "alice", "--config", configPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, datastore.ErrUsernameTaken))

	ds := openStore(t, dir)
	alice, err := ds.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.False(t, alice.IsAdmin)
	bob, err := ds.GetUserByUsername("bob")
	require.NoError(t, err)
	assert.True(t, bob.IsAdmin)
}

func TestUserAddRequiresPassword(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, _, err := execute(t, "", "useradd", "carol", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no password on stdin")
}

func TestModelCommandsRequireModelPath(t *testing.T) {
	configPath, _ := writeConfig(t)
	t.Setenv("PNEUMODETECT_MODEL_PATH", "")

	tests := []struct {
		name string
		args []string
	}{
		{"serve", []string{"serve", "--config", configPath}},
		{"classify", []string{"classify", "xray.png", "--config", configPath}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "model.path is required")
		})
	}
}

func TestModelFlagReachesLoader(t *testing.T) {
	configPath, dir := writeConfig(t)
	missing := filepath.Join(dir, "missing.tflite")

	for _, command := range []string{"serve", "classify"} {
		t.Run(command, func(t *testing.T) {
			args := []string{command, "--config", configPath, "--model", missing}
			if command == "classify" {
				args = append(args, "xray.png")
			}

			_, _, err := execute(t, "", args...)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad), "got %v", err)
			assert.Contains(t, err.Error(), "missing.tflite")
		})
	}
}
