package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/quill/csrf"
	"github.com/jmcleod/quill/locale"
	"github.com/jmcleod/quill/session"
)

const testSecret = "0123456789abcdefghijklmnopqrstuvwxyzABCD"

type fixture struct {
	gate   *Gate
	codec  *session.Codec
	called bool
	seen   *http.Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := session.NewCodec(testSecret, true)
	require.NoError(t, err)
	resolver, err := locale.NewResolver([]string{"zh", "en"}, "zh")
	require.NoError(t, err)
	g, err := New(Config{Sessions: codec, Locales: resolver, SkipPrefixes: []string{"/assets/"}})
	require.NoError(t, err)
	return &fixture{gate: g, codec: codec}
}

func (f *fixture) handler() http.Handler {
	return f.gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.called = true
		f.seen = r
		w.WriteHeader(http.StatusOK)
	}))
}

func (f *fixture) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token, err := f.codec.Sign(session.Claims{Subject: "u-1", Username: "alice", Role: session.RoleAdmin}, 0)
	require.NoError(t, err)
	return session.Cookie(token, false)
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestClassify(t *testing.T) {
	f := newFixture(t)
	tests := map[string]Kind{
		"/login":             Login,
		"/login/extra":       Public,
		"/dashboard":         Protected,
		"/dashboard/":        Protected,
		"/users/42":          Protected,
		"/usersettings":      Public,
		"/projects":          Protected,
		"/project":           Public,
		"/project/abc":       Public,
		"/blog":              Public,
		"/":                  Public,
		"/logout":            Protected,
		"/categories/x/edit": Protected,
	}
	for path, want := range tests {
		assert.Equal(t, want, f.gate.Classify(path), path)
	}
}

func TestAnonymousProtectedRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.False(t, f.called)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login?from=%2Fdashboard", rec.Header().Get("Location"))
}

func TestInvalidSessionIsAnonymous(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/writing", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "not-a-token"})

	d, err := f.gate.Decide(req)
	require.NoError(t, err)
	assert.False(t, d.Authenticated)
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, "/login?from=%2Fwriting", d.Location)
}

func TestAuthenticatedLoginRedirectsToDashboard(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(f.sessionCookie(t))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, DashboardPath, rec.Header().Get("Location"))
	c := responseCookie(rec, csrf.CookieName)
	require.NotNil(t, c, "csrf cookie issued with the redirect")
	assert.False(t, c.HttpOnly)
	assert.NotEmpty(t, c.Value)

	req = httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(f.sessionCookie(t))
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: "existing"})
	rec = httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)
	assert.Nil(t, responseCookie(rec, csrf.CookieName), "existing csrf cookie is kept")
}

func TestAnonymousLoginPassesThrough(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	assert.True(t, f.called)
	assert.Nil(t, responseCookie(rec, csrf.CookieName))
}

func TestTransientQueryParamsStripped(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blog?_lang=en&page=2&_ts=123", nil))

	assert.False(t, f.called)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/blog?page=2", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about?_ts=1", nil))
	assert.Equal(t, "/about", rec.Header().Get("Location"))
}

func TestLocaleInjection(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/blog", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	require.True(t, f.called)
	assert.Equal(t, "en", f.seen.Header.Get(locale.HeaderName))
	loc, ok := locale.FromContext(f.seen.Context())
	require.True(t, ok)
	assert.Equal(t, "en", loc)
	c := responseCookie(rec, locale.CookieName)
	require.NotNil(t, c)
	assert.Equal(t, "en", c.Value)

	req = httptest.NewRequest(http.MethodGet, "/blog", nil)
	req.Header.Set("Accept-Language", "en")
	req.AddCookie(&http.Cookie{Name: locale.CookieName, Value: "zh"})
	rec = httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)
	assert.Equal(t, "zh", f.seen.Header.Get(locale.HeaderName), "cookie wins over Accept-Language")
	assert.Nil(t, responseCookie(rec, locale.CookieName))

	req = httptest.NewRequest(http.MethodGet, "/blog", nil)
	req.Header.Set(locale.HeaderName, "fr")
	rec = httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)
	assert.Equal(t, "zh", f.seen.Header.Get(locale.HeaderName), "client supplied header is overwritten")
}

func TestAuthenticatedPassIssuesCSRFAndClaims(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(f.sessionCookie(t))
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, req)

	require.True(t, f.called)
	claims, ok := ClaimsFromContext(f.seen.Context())
	require.True(t, ok)
	assert.Equal(t, "alice", claims.Username)
	assert.NotNil(t, responseCookie(rec, csrf.CookieName))
}

func TestAnonymousPublicHasNoClaims(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, f.called)
	_, ok := ClaimsFromContext(f.seen.Context())
	assert.False(t, ok)
	assert.Nil(t, responseCookie(rec, csrf.CookieName))
}

func TestSkipPrefixes(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js?_ts=1", nil))

	assert.True(t, f.called)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/writing", "/writing"},
		{"/blog-list?page=2", "/blog-list?page=2"},
		{"", DashboardPath},
		{"writing", DashboardPath},
		{"//evil.example", DashboardPath},
		{"/\\evil.example", DashboardPath},
		{"https://evil.example/x", DashboardPath},
		{"/login", DashboardPath},
		{"/login?from=/x", DashboardPath},
		{"/a\\b", DashboardPath},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeReturnPath(tt.raw, DashboardPath), tt.raw)
	}
}
