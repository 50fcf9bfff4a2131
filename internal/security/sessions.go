package security

import (
	"crypto/sha256"
	"encoding/gob"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/pneumodetect/internal/conf"
	"github.com/tphakala/pneumodetect/internal/errors"
	"github.com/tphakala/pneumodetect/internal/logger"
)

const (
	SessionName = "pneumodetect_session"

	userIDKey  = "user_id"
	uploadsKey = "uploads"
	flashesKey = "_flash" // gorilla/sessions default flash key

	// uploads remembered for visitors who are not logged in
	maxTrackedUploads = 10
	// length of the uuid that starts every stored upload name
	maxUploadKeyLength = 36
)

// Flash kinds, matching the alert styles used by the templates.
const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func init() {
	gob.Register(Flash{})
}

// Sessions stores the logged-in user, flash messages and the uploads of
// the current visitor in a signed and encrypted cookie.
type Sessions struct {
	store *sessions.CookieStore
	log   logger.Logger
}

// NewSessions creates the cookie store from the configured session secret.
func NewSessions(settings conf.SecuritySettings) (*Sessions, error) {
	if len(settings.SessionSecret) < conf.MinSessionSecretLength {
		return nil, errors.Newf("session secret must be at least %d characters", conf.MinSessionSecretLength).
			Component("security").
			Category(errors.CategoryConfiguration).
			Build()
	}

	store := sessions.NewCookieStore(
		createSessionKey(settings.SessionSecret),
		createSessionKey(settings.SessionSecret+"encryption"),
	)
	store.Options = buildSessionOptions(settings.SecureCookies, 0)
	return &Sessions{store: store, log: GetLogger()}, nil
}

// createSessionKey derives a 32 byte key from seed.
func createSessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// buildSessionOptions returns cookie options; maxAge 0 makes a browser
// session cookie.
func buildSessionOptions(secure bool, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// session returns the request's session. A cookie that fails to decode,
// for instance after the secret changed, yields a fresh session.
func (s *Sessions) session(c echo.Context) *sessions.Session {
	sess, err := s.store.Get(c.Request(), SessionName)
	if err != nil {
		s.log.Debug("discarding undecodable session cookie", logger.Error(err))
	}
	return sess
}

func (s *Sessions) save(c echo.Context, sess *sessions.Session) error {
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return errors.New(err).
			Component("security").
			Category(errors.CategoryHTTP).
			Context("operation", "save_session").
			Build()
	}
	return nil
}

// Login marks the session as belonging to userID. Anything else stored in
// the session apart from pending flashes is dropped.
func (s *Sessions) Login(c echo.Context, userID uint) error {
	sess := s.session(c)
	for k := range sess.Values {
		if k != flashesKey {
			delete(sess.Values, k)
		}
	}
	sess.Values[userIDKey] = userID
	return s.save(c, sess)
}

// Logout clears the session and expires the cookie.
func (s *Sessions) Logout(c echo.Context) error {
	sess := s.session(c)
	clear(sess.Values)
	opts := *s.store.Options
	opts.MaxAge = -1
	sess.Options = &opts
	return s.save(c, sess)
}

// CurrentUser returns the logged-in user id, if any.
func (s *Sessions) CurrentUser(c echo.Context) (uint, bool) {
	id, ok := s.session(c).Values[userIDKey].(uint)
	return id, ok && id > 0
}

// AddFlash queues a message for the next rendered page.
func (s *Sessions) AddFlash(c echo.Context, kind, message string) error {
	sess := s.session(c)
	sess.AddFlash(Flash{Kind: kind, Message: message})
	return s.save(c, sess)
}

// Flashes returns and removes queued messages.
func (s *Sessions) Flashes(c echo.Context) []Flash {
	sess := s.session(c)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := s.save(c, sess); err != nil {
		s.log.Warn("failed to persist consumed flashes", logger.Error(err))
	}

	out := make([]Flash, 0, len(raw))
	for _, f := range raw {
		if flash, ok := f.(Flash); ok {
			out = append(out, flash)
		}
	}
	return out
}

// TrackUpload remembers that this visitor uploaded name so it can be served
// back without an account. Only the most recent uploads are kept, and only
// by their unique prefix so the cookie stays small for long filenames.
func (s *Sessions) TrackUpload(c echo.Context, name string) error {
	sess := s.session(c)
	uploads, _ := sess.Values[uploadsKey].([]string)
	uploads = append(uploads, uploadKey(name))
	if len(uploads) > maxTrackedUploads {
		uploads = uploads[len(uploads)-maxTrackedUploads:]
	}
	sess.Values[uploadsKey] = uploads
	return s.save(c, sess)
}

// UploadedInSession reports whether name was uploaded by this visitor.
func (s *Sessions) UploadedInSession(c echo.Context, name string) bool {
	uploads, _ := s.session(c).Values[uploadsKey].([]string)
	return slices.Contains(uploads, uploadKey(name))
}

// uploadKey reduces a stored name "<uuid>_<original>" to its uuid.
func uploadKey(name string) string {
	if i := strings.IndexByte(name, '_'); i >= 0 {
		name = name[:i]
	}
	if len(name) > maxUploadKeyLength {
		name = name[:maxUploadKeyLength]
	}
	return name
}
