package observability

import (
	"fmt"

	"github.com/tphakala/pneumodetect/internal/logger"
)

// GetLogger returns a logger scoped to the observability module.
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}

// promLogger routes promhttp errors to the application logger.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	GetLogger().Error("metrics handler error", logger.String("message", fmt.Sprint(v...)))
}
