package httpcontroller

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/tphakala/pneumodetect/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the web server logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("http")
	})
	return serviceLogger
}

// echoLogAdapter adapts our Logger to implement io.Writer for Echo
type echoLogAdapter struct {
	logger logger.Logger
}

// Write implements io.Writer for echoLogAdapter
func (a *echoLogAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		a.logger.Info(msg)
	}
	return len(p), nil
}

// initLogger routes echo's own log output through the structured logger.
func (s *Server) initLogger() {
	s.Echo.Logger.SetOutput(&echoLogAdapter{logger: s.log.Module("echo")})
	if s.Settings.Debug {
		s.Echo.Logger.SetLevel(log.DEBUG)
	} else {
		s.Echo.Logger.SetLevel(log.WARN)
	}
}

// requestLogger logs every request at a level chosen by status and feeds
// the HTTP metrics. Paths are recorded as route patterns to keep label
// cardinality bounded.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	httpLogger := s.log.Module("request")

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		LogUserAgent: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			s.Metrics.HTTP.RecordHTTPRequest(v.Method, route, v.Status, v.Latency.Seconds())

			level := logger.LogLevelInfo
			switch {
			case v.Status >= 500:
				level = logger.LogLevelError
			case v.Status >= 400:
				level = logger.LogLevelWarn
			case v.Status >= 300 || route == "/healthz" || route == "/metrics":
				level = logger.LogLevelDebug
			}

			fields := []logger.Field{
				logger.String("remote_ip", v.RemoteIP),
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Float64("latency_ms", float64(v.Latency)/float64(time.Millisecond)),
			}
			if v.RequestID != "" {
				fields = append(fields, logger.String("request_id", v.RequestID))
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			if v.Status >= 400 && v.UserAgent != "" {
				fields = append(fields, logger.String("user_agent", v.UserAgent))
			}

			httpLogger.Log(level, fmt.Sprintf("%s %s %d", v.Method, route, v.Status), fields...)
			return nil
		},
	})
}
