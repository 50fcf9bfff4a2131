package handlers

import (
	"sync"

	"github.com/tphakala/pneumodetect/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the handlers logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("http").Module("handlers")
	})
	return serviceLogger
}
