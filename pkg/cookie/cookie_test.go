package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedidoflow/guestkit/pkg/cookie"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T, opts ...cookie.Option) *cookie.Manager {
	t.Helper()

	m, err := cookie.New([]string{testSecret}, opts...)
	require.NoError(t, err)
	return m
}

func requestWithCookies(w *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest("GET", "/", nil)
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("no secrets", func(t *testing.T) {
		_, err := cookie.New(nil)
		assert.ErrorIs(t, err, cookie.ErrNoSecret)
	})

	t.Run("empty secrets filtered", func(t *testing.T) {
		_, err := cookie.New([]string{""})
		assert.ErrorIs(t, err, cookie.ErrNoSecret)
	})

	t.Run("short secret", func(t *testing.T) {
		_, err := cookie.New([]string{"short"})
		assert.ErrorIs(t, err, cookie.ErrSecretTooShort)
	})
}

func TestSignedRoundTrip(t *testing.T) {
	t.Parallel()

	m := newManager(t)

	w := httptest.NewRecorder()
	m.SetSigned(w, "auth", "bearer-token-value")

	got, err := m.GetSigned(requestWithCookies(w), "auth")
	require.NoError(t, err)
	assert.Equal(t, "bearer-token-value", got)
}

func TestTamperedCookie(t *testing.T) {
	t.Parallel()

	m := newManager(t)

	w := httptest.NewRecorder()
	m.SetSigned(w, "auth", "bearer-token-value")

	raw := w.Result().Cookies()[0]
	parts := strings.SplitN(raw.Value, "|", 2)
	require.Len(t, parts, 2)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "auth", Value: parts[0] + "|AAAA" + parts[1][4:]})

	_, err := m.GetSigned(r, "auth")
	assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
}

func TestKeyRotation(t *testing.T) {
	t.Parallel()

	oldSecret := strings.Repeat("a", 32)
	oldManager, err := cookie.New([]string{oldSecret})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	oldManager.SetSigned(w, "auth", "value-from-old-key")

	rotated, err := cookie.New([]string{testSecret, oldSecret})
	require.NoError(t, err)

	got, err := rotated.GetSigned(requestWithCookies(w), "auth")
	require.NoError(t, err)
	assert.Equal(t, "value-from-old-key", got)
}

func TestMissingCookie(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	r := httptest.NewRequest("GET", "/", nil)

	_, err := m.GetSigned(r, "absent")
	assert.ErrorIs(t, err, cookie.ErrCookieNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	w := httptest.NewRecorder()
	m.Delete(w, "auth")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.Empty(t, cookies[0].Value)
}

func TestDefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	m := newManager(t, cookie.WithSecure(true))
	w := httptest.NewRecorder()
	m.Set(w, "plain", "v", cookie.WithMaxAge(2592000))

	c := w.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 2592000, c.MaxAge)
}
