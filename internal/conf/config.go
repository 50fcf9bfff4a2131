// config.go: configuration for PneumoDetect. It defines the settings struct and functions to load and save the settings.
package conf

import (
	"crypto/rand"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Port         string        // port to listen on
	ReadTimeout  time.Duration // request read timeout
	WriteTimeout time.Duration // response write timeout
	RateLimit    float64       // requests per second per client on login, register and predict, 0 disables
	RateBurst    int
}

// ModelSettings describes the pre-trained classifier.
type ModelSettings struct {
	Path        string // path to .tflite or .onnx model file, required
	Backend     string // "tflite", "onnx" or empty to infer from Path
	InputSize   int    // square input edge in pixels
	Layout      string // "nhwc" or "nchw"
	Threads     int    // inference threads, 0 for physical core count
	UseXNNPACK  bool   // tflite only
	ONNXLibrary string // path to the onnxruntime shared library, onnx only
	InputName   string // onnx input tensor name
	OutputName  string // onnx output tensor name
	Outputs     int    // values emitted per image, 1 (sigmoid) or 2 (softmax), onnx only
}

// IntakeSettings controls how uploads are accepted and stored.
type IntakeSettings struct {
	UploadDir         string   // directory for stored uploads
	AllowedExtensions []string // lowercase extensions without the dot
	MaxUploadSize     int64    // bytes
	MinFreeMB         uint64   // refuse uploads below this much free space, 0 disables
	Thumbnails        bool     // write history thumbnails
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Path string // path to sqlite database
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DatabaseSettings selects and configures the backing store.
type DatabaseSettings struct {
	Type   string // "sqlite" or "mysql"
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SecuritySettings contains account and session settings.
type SecuritySettings struct {
	SessionSecret    string        // HMAC key for session cookies
	SecureCookies    bool          // set the Secure cookie flag
	CSRF             bool          // enable CSRF protection on HTML forms
	BcryptCost       int           // bcrypt work factor
	MaxLoginAttempts int           // failed logins before lockout, 0 disables
	LockoutDuration  time.Duration // lockout window
}

// LoggingSettings configures console and file logging.
type LoggingSettings struct {
	Level   string
	Console bool
	File    struct {
		Enabled    bool
		Path       string
		MaxSize    int // MB
		MaxBackups int
		MaxAge     int // days
		Compress   bool
	}
}

// ObservabilitySettings configures the Prometheus endpoint.
type ObservabilitySettings struct {
	Enabled bool
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// Settings contains all configuration options for PneumoDetect.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version    string `yaml:"-"`
	ConfigFile string `yaml:"-"`

	WebServer     WebServerSettings
	Model         ModelSettings
	Intake        IntakeSettings
	Database      DatabaseSettings
	Security      SecuritySettings
	Logging       LoggingSettings
	Observability ObservabilitySettings
	Sentry        SentrySettings
}

// New returns a viper instance with defaults and environment bindings
// applied. Command line flags are bound to it before Load is called.
func New() (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)
	if err := configureEnvironmentVariables(v); err != nil {
		return v, err
	}
	return v, nil
}

// Load reads the configuration file (configFile, or the first config.yaml
// found in the default paths), unmarshals it over the defaults held by v
// and validates the result. When no file exists a default one is written.
// A missing session secret is generated and persisted.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := readConfig(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()
	normalizeSettings(settings)

	if settings.Security.SessionSecret == "" {
		settings.Security.SessionSecret = GenerateRandomSecret()
		if settings.ConfigFile != "" {
			if err := persistSessionSecret(settings.ConfigFile, settings.Security.SessionSecret); err != nil {
				return nil, fmt.Errorf("error persisting generated session secret: %w", err)
			}
		}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// readConfig points v at the configuration file and reads it.
func readConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	err = v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		// default config goes into the user config directory
		return createDefaultConfig(v, filepath.Join(configPaths[1], "config.yaml"))
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

// createDefaultConfig writes the embedded default config with a freshly
// generated session secret to configPath and reads it back.
func createDefaultConfig(v *viper.Viper, configPath string) error {
	defaultConfig := strings.Replace(getDefaultConfig(), `sessionsecret: ""`,
		fmt.Sprintf("sessionsecret: %q", GenerateRandomSecret()), 1)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// getDefaultConfig returns the embedded default config.yaml.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// embedded at build time, cannot be missing
		panic(fmt.Sprintf("embedded config.yaml: %v", err))
	}
	return string(data)
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in order: the working directory, the user config directory and /etc.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting home directory: %w", err)
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "pneumodetect"),
		"/etc/pneumodetect",
	}, nil
}

func normalizeSettings(s *Settings) {
	s.Model.Backend = strings.ToLower(strings.TrimSpace(s.Model.Backend))
	s.Model.Layout = strings.ToLower(strings.TrimSpace(s.Model.Layout))
	s.Database.Type = strings.ToLower(strings.TrimSpace(s.Database.Type))
	for i, ext := range s.Intake.AllowedExtensions {
		s.Intake.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
}

// persistSessionSecret stores secret under security.sessionsecret in the
// file at configPath. Everything else in the file is left as written, so
// values that came from flags or the environment never reach the disk.
func persistSessionSecret(configPath, secret string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	if doc.Kind != yaml.DocumentNode {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.New("error updating config file: top level is not a mapping")
	}

	security := mappingValue(root, "security")
	if security.Kind != yaml.MappingNode {
		*security = yaml.Node{Kind: yaml.MappingNode}
	}
	*mappingValue(security, "sessionsecret") = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: secret}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("error marshaling config file: %w", err)
	}
	return writeFileAtomic(configPath, out)
}

// mappingValue returns the value node for key in mapping, matching keys
// case-insensitively like viper does, and appends the key when absent.
func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if strings.EqualFold(mapping.Content[i].Value, key) {
			return mapping.Content[i+1]
		}
	}
	value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
	return value
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory. The result is readable only by the owner.
func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		tempFile.Close()
		return fmt.Errorf("error setting config file mode: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, path); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// Redacted returns a copy of s with secrets blanked, suitable for printing.
func (s *Settings) Redacted() Settings {
	out := *s
	if out.Security.SessionSecret != "" {
		out.Security.SessionSecret = "[REDACTED]"
	}
	if out.Database.MySQL.Password != "" {
		out.Database.MySQL.Password = "[REDACTED]"
	}
	if out.Sentry.DSN != "" {
		out.Sentry.DSN = "[REDACTED]"
	}
	out.Intake.AllowedExtensions = append([]string(nil), s.Intake.AllowedExtensions...)
	return out
}

// GenerateRandomSecret generates a URL-safe base64 encoded random string.
// The output is 43 characters long, providing 256 bits of entropy.
func GenerateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("failed to generate random secret: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
