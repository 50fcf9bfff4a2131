package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pneumodetect/internal/conf"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

// browser carries the session cookie between simulated requests.
type browser struct {
	t       *testing.T
	e       *echo.Echo
	cookies []*http.Cookie
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	return &browser{t: t, e: echo.New()}
}

// do runs fn inside a request context and keeps the last session cookie
// it set.
func (b *browser) do(fn func(c echo.Context)) *http.Response {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range b.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	fn(b.e.NewContext(req, rec))

	res := rec.Result()
	var last *http.Cookie
	for _, ck := range res.Cookies() {
		if ck.Name == SessionName {
			last = ck
		}
	}
	if last != nil {
		if last.MaxAge < 0 {
			b.cookies = nil
		} else {
			b.cookies = []*http.Cookie{last}
		}
	}
	return res
}

func newTestSessions(t *testing.T) *Sessions {
	t.Helper()
	s, err := NewSessions(conf.SecuritySettings{SessionSecret: testSecret})
	require.NoError(t, err)
	return s
}

func TestNewSessionsRejectsShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewSessions(conf.SecuritySettings{SessionSecret: "short"})
	assert.Error(t, err)
}

func TestLoginLogout(t *testing.T) {
	t.Parallel()
	s := newTestSessions(t)
	b := newBrowser(t)

	b.do(func(c echo.Context) {
		_, ok := s.CurrentUser(c)
		assert.False(t, ok)
		require.NoError(t, s.Login(c, 42))
	})

	b.do(func(c echo.Context) {
		id, ok := s.CurrentUser(c)
		assert.True(t, ok)
		assert.Equal(t, uint(42), id)
	})

	res := b.do(func(c echo.Context) {
		require.NoError(t, s.Logout(c))
	})
	var expired bool
	for _, ck := range res.Cookies() {
		if ck.Name == SessionName && ck.MaxAge < 0 {
			expired = true
		}
	}
	assert.True(t, expired, "logout must expire the cookie")

	b.do(func(c echo.Context) {
		_, ok := s.CurrentUser(c)
		assert.False(t, ok)
	})
}

func TestCookieAttributes(t *testing.T) {
	t.Parallel()
	s, err := NewSessions(conf.SecuritySettings{SessionSecret: testSecret, SecureCookies: true})
	require.NoError(t, err)

	res := newBrowser(t).do(func(c echo.Context) {
		require.NoError(t, s.Login(c, 1))
	})
	require.NotEmpty(t, res.Cookies())
	ck := res.Cookies()[0]
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.NotContains(t, ck.Value, "user_id", "cookie contents are encrypted")
}

func TestTamperedCookieIsIgnored(t *testing.T) {
	t.Parallel()
	s := newTestSessions(t)
	b := newBrowser(t)

	b.do(func(c echo.Context) { require.NoError(t, s.Login(c, 7)) })
	require.Len(t, b.cookies, 1)
	v := []byte(b.cookies[0].Value)
	mid := len(v) / 2
	if v[mid] == 'A' {
		v[mid] = 'B'
	} else {
		v[mid] = 'A'
	}
	b.cookies[0].Value = string(v)

	b.do(func(c echo.Context) {
		_, ok := s.CurrentUser(c)
		assert.False(t, ok)
	})
}

func TestCookieFromOtherSecretIsIgnored(t *testing.T) {
	t.Parallel()
	s := newTestSessions(t)
	other, err := NewSessions(conf.SecuritySettings{SessionSecret: testSecret + "-rotated"})
	require.NoError(t, err)
	b := newBrowser(t)

	b.do(func(c echo.Context) { require.NoError(t, s.Login(c, 7)) })
	b.do(func(c echo.Context) {
		_, ok := other.CurrentUser(c)
		assert.False(t, ok)
	})
}

func TestFlashes(t *testing.T) {
	t.Parallel()
	s := newTestSessions(t)
	b := newBrowser(t)

	b.do(func(c echo.Context) {
		require.NoError(t, s.AddFlash(c, FlashDanger, "Invalid file type"))
		require.NoError(t, s.AddFlash(c, FlashInfo, "second"))
	})

	b.do(func(c echo.Context) {
		flashes := s.Flashes(c)
		assert.Equal(t, []Flash{
			{Kind: FlashDanger, Message: "Invalid file type"},
			{Kind: FlashInfo, Message: "second"},
		}, flashes)
	})

	b.do(func(c echo.Context) {
		assert.Empty(t, s.Flashes(c), "flashes are shown once")
	})
}

func TestLoginKeepsPendingFlashes(t *testing.T) {
	t.Parallel()
	s := newTestSessions(t)
	b := newBrowser(t)

	b.do(func(c echo.Context) {
		require.NoError(t, s.TrackUpload(c, "abc_x.png"))
		require.NoError(t, s.AddFlash(c, FlashSuccess, "Login successful"))
		require.NoError(t, s.Login(c, 3))
	})

	b.do(func(c echo.Context) {
		assert.Len(t, s.Flashes(c), 1)
		assert.False(t, s.UploadedInSession(c, "abc_x.png"), "login starts a clean session")
	})
}

func TestTrackUpload(t *testing.T) {
	t.Parallel()
	s := newTestSessions(t)
	b := newBrowser(t)

	for i := range maxTrackedUploads + 2 {
		name := string(rune('a'+i)) + "_scan.png"
		b.do(func(c echo.Context) { require.NoError(t, s.TrackUpload(c, name)) })
	}

	b.do(func(c echo.Context) {
		assert.False(t, s.UploadedInSession(c, "a_scan.png"), "oldest upload is forgotten")
		assert.True(t, s.UploadedInSession(c, "l_scan.png"))
		assert.False(t, s.UploadedInSession(c, "zz.png"))
	})

	other := newBrowser(t)
	other.do(func(c echo.Context) {
		assert.False(t, s.UploadedInSession(c, "l_scan.png"), "uploads are per visitor")
	})
}

func TestTrackUploadLongFilenames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		original string
	}{
		{"short", "scan.png"},
		{"long", strings.Repeat("a", 180) + ".png"},
		{"maximum", strings.Repeat("b", 214) + ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestSessions(t)
			b := newBrowser(t)

			names := make([]string, maxTrackedUploads+2)
			for i := range names {
				names[i] = uuid.NewString() + "_" + tt.original
				res := b.do(func(c echo.Context) { require.NoError(t, s.TrackUpload(c, names[i])) })
				require.NotEmpty(t, res.Cookies(), "upload %d must refresh the cookie", i+1)
			}

			b.do(func(c echo.Context) {
				for _, name := range names[2:] {
					assert.True(t, s.UploadedInSession(c, name))
				}
				assert.False(t, s.UploadedInSession(c, names[0]), "oldest upload is forgotten")
				assert.False(t, s.UploadedInSession(c, uuid.NewString()+"_"+tt.original))
			})
		})
	}
}

func TestUploadKey(t *testing.T) {
	t.Parallel()
	id := "0b3d7c2e-5f4a-4a51-9a0e-3c1f2b6d8e90"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"stored name", id + "_" + strings.Repeat("x", 200) + ".png", id},
		{"no separator", "plain.png", "plain.png"},
		{"overlong without separator", strings.Repeat("y", 80), strings.Repeat("y", maxUploadKeyLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, uploadKey(tt.in))
		})
	}
}
