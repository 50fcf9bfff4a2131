// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with other packages.
const (
	DefaultInputSize     = 224
	DefaultMaxUploadSize = 10 << 20
	DefaultBcryptCost    = 12
)

// DefaultAllowedExtensions are the image types accepted for upload.
var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png"}

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("webserver.port", "8080")
	v.SetDefault("webserver.readtimeout", 30*time.Second)
	v.SetDefault("webserver.writetimeout", 60*time.Second)
	v.SetDefault("webserver.ratelimit", 2.0)
	v.SetDefault("webserver.rateburst", 10)

	// model.path intentionally has no default
	v.SetDefault("model.backend", "")
	v.SetDefault("model.inputsize", DefaultInputSize)
	v.SetDefault("model.layout", "nhwc")
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.usexnnpack", false)
	v.SetDefault("model.onnxlibrary", "")
	v.SetDefault("model.inputname", "input")
	v.SetDefault("model.outputname", "output")
	v.SetDefault("model.outputs", 1)

	v.SetDefault("intake.uploaddir", "uploads")
	v.SetDefault("intake.allowedextensions", DefaultAllowedExtensions)
	v.SetDefault("intake.maxuploadsize", DefaultMaxUploadSize)
	v.SetDefault("intake.minfreemb", 100)
	v.SetDefault("intake.thumbnails", true)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "pneumodetect.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", "3306")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "pneumodetect")

	v.SetDefault("security.sessionsecret", "")
	v.SetDefault("security.securecookies", false)
	v.SetDefault("security.csrf", true)
	v.SetDefault("security.bcryptcost", DefaultBcryptCost)
	v.SetDefault("security.maxloginattempts", 5)
	v.SetDefault("security.lockoutduration", 15*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/pneumodetect.log")
	v.SetDefault("logging.file.maxsize", 100)
	v.SetDefault("logging.file.maxbackups", 10)
	v.SetDefault("logging.file.maxage", 30)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("observability.enabled", true)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
