package httpcontroller

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
	"golang.org/x/time/rate"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/httpcontroller/handlers"
	"github.com/tphakala/pneumodetect/internal/logger"
)

// multipart framing and form fields on top of the largest upload
const bodyOverhead = 1 << 20

const contentSecurityPolicy = "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'"

// configureMiddleware sets up the global middleware chain.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.log.Error("panic recovered",
				logger.String("path", c.Request().URL.Path),
				logger.Error(err),
				logger.String("stack", string(stack)))
			return err
		},
	}))
	s.Echo.Use(s.requestID())
	s.Echo.Use(s.requestLogger())
	s.Echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: contentSecurityPolicy,
		ReferrerPolicy:        "same-origin",
	}))
	s.Echo.Use(middleware.BodyLimit(bodyLimit(s.Settings.Intake.MaxUploadSize)))
	s.Echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:     6,
		MinLength: 2048,
		Skipper:   skipGzip,
	}))
	if s.Settings.Security.CSRF {
		s.Echo.Use(CSRFMiddleware(s.Settings.Security.SecureCookies))
	}
	s.Echo.Use(s.Handlers.LoadUser)
}

// bodyLimit returns the request body cap in the format BodyLimit parses.
func bodyLimit(maxUpload int64) string {
	if maxUpload <= 0 {
		maxUpload = conf.DefaultMaxUploadSize
	}
	return bytes.Format(maxUpload + bodyOverhead)
}

// requestID tags every request with a uuid and carries it in the request
// context for context-aware logging.
func (s *Server) requestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

// skipGzip keeps gzip away from images and from /metrics, which
// negotiates its own compression.
func skipGzip(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/metrics" ||
		strings.HasPrefix(path, "/uploads/") ||
		strings.HasSuffix(path, "/image") ||
		strings.HasSuffix(path, "/thumbnail")
}

// CSRFMiddleware protects HTML form posts. The JSON API, health and metrics
// endpoints are exempt.
func CSRFMiddleware(secure bool) echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:X-CSRF-Token,form:_csrf",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   secure,
		CookieSameSite: http.SameSiteLaxMode,
		CookieMaxAge:   int((12 * time.Hour).Seconds()),
		ContextKey:     handlers.CSRFContextKey,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/") || path == "/healthz" || path == "/metrics"
		},
		ErrorHandler: func(err error, c echo.Context) error {
			GetLogger().Warn("CSRF validation failed",
				logger.String("path", c.Request().URL.Path),
				logger.Error(err))
			return echo.NewHTTPError(http.StatusForbidden, "Invalid CSRF token")
		},
	})
}

// rateLimiter limits form posts and API predictions per client IP. A zero
// rate disables it.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	ws := s.Settings.WebServer
	if ws.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := ws.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ws.RateLimit),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.log.Warn("rate limit exceeded",
				logger.String("client", identifier),
				logger.String("path", c.Path()))
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please slow down")
		},
	})
}
