package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/datastore"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
	"github.com/tphakala/pneumodetect/internal/observability/metrics"
	"github.com/tphakala/pneumodetect/internal/security"
)

const userContextKey = "user"

// LoadUser resolves the session's user id into a User for the rest of the
// chain. A session pointing at a user that no longer exists is treated as
// anonymous.
func (h *Handlers) LoadUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id, ok := h.Sessions.CurrentUser(c); ok {
			user, err := h.DS.GetUser(id)
			switch {
			case err == nil:
				c.Set(userContextKey, user)
			case errors.IsNotFound(err):
				h.log.Debug("session refers to unknown user", logger.Uint("user_id", id))
			default:
				return err
			}
		}
		return next(c)
	}
}

// CurrentUser returns the logged-in user or nil.
func CurrentUser(c echo.Context) *datastore.User {
	user, _ := c.Get(userContextKey).(*datastore.User)
	return user
}

// RequireLogin redirects anonymous visitors to the login page with a
// warning flash.
func (h *Handlers) RequireLogin(message string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if CurrentUser(c) == nil {
				return h.flashRedirect(c, security.FlashWarning, message, "/login")
			}
			return next(c)
		}
	}
}

// RequireAPIUser rejects anonymous API calls with 401.
func (h *Handlers) RequireAPIUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if CurrentUser(c) == nil {
			return &HandlerError{Message: "Authentication required", Code: http.StatusUnauthorized}
		}
		return next(c)
	}
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(c echo.Context) error {
	return h.render(c, http.StatusOK, "register", "Register", nil)
}

// Register creates an account from the username, password and optional
// email form fields.
func (h *Handlers) Register(c echo.Context) error {
	id, err := h.Accounts.Register(c.FormValue("username"), c.FormValue("password"), c.FormValue("email"))
	switch {
	case err == nil:
		h.Metrics.HTTP.RecordAuthEvent(metrics.AuthRegister)
		h.log.Info("user registered", logger.Uint("user_id", id))
		return h.flashRedirect(c, security.FlashSuccess, "Registration successful! Please log in.", "/login")
	case errors.Is(err, datastore.ErrUsernameTaken):
		h.Metrics.HTTP.RecordAuthEvent(metrics.AuthRegisterTaken)
		return h.flashRedirect(c, security.FlashDanger, "Username already exists", "/register")
	case errors.IsCategory(err, errors.CategoryValidation):
		return h.flashRedirect(c, security.FlashDanger, registrationMessage(err), "/register")
	default:
		return err
	}
}

func registrationMessage(err error) string {
	switch {
	case errors.Is(err, security.ErrInvalidUsername):
		return "Username must be 1-80 characters without spaces"
	case errors.Is(err, security.ErrInvalidPassword):
		return "Password must be 1-72 bytes"
	case errors.Is(err, security.ErrInvalidEmail):
		return "Invalid email address"
	default:
		return "Invalid registration details"
	}
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(c echo.Context) error {
	return h.render(c, http.StatusOK, "login", "Login", nil)
}

// Login authenticates the form credentials and starts a session.
func (h *Handlers) Login(c echo.Context) error {
	user, err := h.Accounts.Authenticate(c.FormValue("username"), c.FormValue("password"))
	switch {
	case err == nil:
	case errors.Is(err, security.ErrTooManyAttempts):
		h.Metrics.HTTP.RecordAuthEvent(metrics.AuthLockedOut)
		return h.flashRedirect(c, security.FlashDanger, "Too many failed login attempts, please try again later", "/login")
	case errors.Is(err, security.ErrInvalidCredentials):
		h.Metrics.HTTP.RecordAuthEvent(metrics.AuthLoginFailed)
		return h.flashRedirect(c, security.FlashDanger, "Invalid credentials", "/login")
	default:
		return err
	}

	if err := h.Sessions.Login(c, user.ID); err != nil {
		return err
	}
	h.Metrics.HTTP.RecordAuthEvent(metrics.AuthLogin)
	return h.flashRedirect(c, security.FlashSuccess, "Login successful", "/")
}

// Logout ends the session.
func (h *Handlers) Logout(c echo.Context) error {
	if err := h.Sessions.Logout(c); err != nil {
		return err
	}
	if CurrentUser(c) != nil {
		h.Metrics.HTTP.RecordAuthEvent(metrics.AuthLogout)
	}
	return c.Redirect(http.StatusFound, "/")
}
