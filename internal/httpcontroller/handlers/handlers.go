// Package handlers implements the page and JSON handlers of the web front.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/classifier"
	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/intake"
	"github.com/tphakala/pneumodetect/internal/logger"
	"github.com/tphakala/pneumodetect/internal/observability"
	"github.com/tphakala/pneumodetect/internal/observability/metrics"
	"github.com/tphakala/pneumodetect/internal/security"
)

// CSRFContextKey is where the CSRF middleware leaves the form token.
const CSRFContextKey = "csrf"

// Classifier labels a stored image.
type Classifier interface {
	Classify(path string) (classifier.Result, error)
}

// Handlers contains all the handler functions and their dependencies
type Handlers struct {
	DS         datastore.Interface
	Settings   *conf.Settings
	Classifier Classifier
	Uploads    *intake.Store
	Accounts   *security.Accounts
	Sessions   *security.Sessions
	Metrics    *observability.Metrics
	Backend    string // model runtime reported by /healthz
	log        logger.Logger
}

// HandlerError is an error with an HTTP status code and a message that is
// safe to show to the client.
type HandlerError struct {
	Err     error
	Message string
	Code    int
}

// Error implements the error interface for HandlerError.
func (e *HandlerError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// New creates a new Handlers instance with the given dependencies.
func New(ds datastore.Interface, settings *conf.Settings, cls Classifier, uploads *intake.Store,
	accounts *security.Accounts, sessions *security.Sessions, metricsInstance *observability.Metrics, backend string,
) *Handlers {
	return &Handlers{
		DS:         ds,
		Settings:   settings,
		Classifier: cls,
		Uploads:    uploads,
		Accounts:   accounts,
		Sessions:   sessions,
		Metrics:    metricsInstance,
		Backend:    backend,
		log:        GetLogger(),
	}
}

// PageData is passed to every page template.
type PageData struct {
	Title   string
	Page    string
	User    *datastore.User
	Flashes []security.Flash
	CSRF    string
	Data    any
}

// render executes the named page template. Pending flashes are consumed.
func (h *Handlers) render(c echo.Context, code int, name, title string, data any) error {
	csrf, _ := c.Get(CSRFContextKey).(string)
	return c.Render(code, name, PageData{
		Title:   title,
		Page:    name,
		User:    CurrentUser(c),
		Flashes: h.Sessions.Flashes(c),
		CSRF:    csrf,
		Data:    data,
	})
}

// flashRedirect queues a flash message and redirects with 302 Found.
func (h *Handlers) flashRedirect(c echo.Context, kind, message, target string) error {
	if err := h.Sessions.AddFlash(c, kind, message); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, target)
}

// IsAPI reports whether the request targets the JSON API.
func IsAPI(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// StatusFor maps an error to the HTTP status reported to the client.
func StatusFor(err error) int {
	var he *HandlerError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &echoErr):
		return echoErr.Code
	}

	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryLimit:
		return http.StatusTooManyRequests
	case errors.CategoryDiskUsage:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the text shown to the client for err. Server side
// failures never expose their cause.
func publicMessage(err error, code int) string {
	var he *HandlerError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) && code < http.StatusInternalServerError {
		if msg, ok := echoErr.Message.(string); ok {
			return msg
		}
	}
	switch code {
	case http.StatusNotFound:
		return "Page not found"
	case http.StatusUnauthorized:
		return "Authentication required"
	case http.StatusTooManyRequests:
		return "Too many requests, please slow down"
	case http.StatusRequestEntityTooLarge:
		return "File too large"
	}
	if code < http.StatusInternalServerError {
		return http.StatusText(code)
	}
	return "An unexpected error occurred"
}

// HandleError renders err as an error page, or as JSON for API requests.
// Oversized HTML uploads are turned into a flash on the upload form.
func (h *Handlers) HandleError(err error, c echo.Context) error {
	if c.Response().Committed {
		return nil
	}

	code := StatusFor(err)
	message := publicMessage(err, code)

	if code >= http.StatusInternalServerError {
		h.log.Error("request failed",
			logger.String("method", c.Request().Method),
			logger.String("path", c.Request().URL.Path),
			logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			logger.Error(err))
	}

	if IsAPI(c) {
		return c.JSON(code, map[string]string{"error": message})
	}
	if code == http.StatusRequestEntityTooLarge && c.Request().Method == http.MethodPost {
		h.Metrics.Prediction.RecordUploadRejected(metrics.RejectTooLarge)
		return h.flashRedirect(c, security.FlashDanger, "File too large", "/predict")
	}

	template := "error"
	if code == http.StatusNotFound {
		template = "404"
	}
	return h.render(c, code, template, fmt.Sprintf("%d Error", code), map[string]any{
		"Code":    code,
		"Message": message,
	})
}
