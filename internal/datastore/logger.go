// Package datastore provides logging for the datastore package.
package datastore

import (
	"sync"

	"github.com/tphakala/pneumodetect/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the datastore package logger scoped to the datastore module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("datastore")
	})
	return serviceLogger
}
