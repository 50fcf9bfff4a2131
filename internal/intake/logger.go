package intake

import (
	"sync"

	"github.com/tphakala/pneumodetect/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the intake package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("intake")
	})
	return serviceLogger
}
