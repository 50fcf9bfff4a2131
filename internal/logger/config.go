package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level   string      // trace, debug, info, warn, error
	Console bool        // human readable output on stdout
	File    *FileOutput // optional JSON file output with rotation
}

// FileOutput represents file logging configuration.
// File output uses JSON format with RFC3339 timestamps for machine parsing.
type FileOutput struct {
	Enabled    bool   // enable file output
	Path       string // log file path
	MaxSize    int    // maximum size in MB before rotation
	MaxBackups int    // maximum number of rotated files to keep (0 = no limit)
	MaxAge     int    // maximum age in days to keep rotated logs (0 = no limit)
	Compress   bool   // gzip rotated logs
}

// Default values for logging configuration.
// These match the defaults in conf/defaults.go.
const (
	DefaultLogLevel   = "info"
	DefaultLogPath    = "logs/pneumodetect.log"
	DefaultMaxSize    = 100
	DefaultMaxBackups = 10
	DefaultMaxAge     = 30
)

func (c *LoggingConfig) applyDefaults() {
	if c.Level == "" {
		c.Level = DefaultLogLevel
	}
	if c.File == nil || !c.File.Enabled {
		return
	}
	if c.File.Path == "" {
		c.File.Path = DefaultLogPath
	}
	if c.File.MaxSize <= 0 {
		c.File.MaxSize = DefaultMaxSize
	}
}
