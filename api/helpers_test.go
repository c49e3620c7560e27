package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/csrf"
	"github.com/jmcleod/quill/i18n"
	"github.com/jmcleod/quill/locale"
	"github.com/jmcleod/quill/session"
	"github.com/jmcleod/quill/storage/memory"
)

const (
	testAdmin    = "admin"
	testPassword = "admin-password"
)

// newTestAPI builds an API over an in-memory repository.
func newTestAPI(t testing.TB, opts ...Option) *API {
	t.Helper()
	sessions, err := session.NewCodec("unit-signing-key", false)
	require.NoError(t, err)
	locales, err := locale.NewResolver([]string{"zh", "en"}, "zh")
	require.NoError(t, err)
	catalog, err := i18n.LoadEmbedded([]string{"zh", "en"}, "zh")
	require.NoError(t, err)

	store := content.NewStore(memory.NewRepository(), content.WithBcryptCost(bcrypt.MinCost))
	a := New(store, sessions, locales, catalog, opts...)
	t.Cleanup(a.Close)
	return a
}

// serve seeds the admin account and mounts a under /api/v1.
func serve(t *testing.T, a *API) (*httptest.Server, content.User) {
	t.Helper()
	admin, _, err := a.content.EnsureAdmin(t.Context(), testAdmin, "", testPassword)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, admin
}

// send issues a JSON request. Unsafe methods echo the client's csrf
// cookie in the header when it has one.
func send(t *testing.T, client *http.Client, method, rawURL string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, rawURL, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && client.Jar != nil {
		u, err := url.Parse(rawURL)
		require.NoError(t, err)
		for _, c := range client.Jar.Cookies(u) {
			if c.Name == csrf.CookieName {
				req.Header.Set(csrf.HeaderName, c.Value)
			}
		}
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// signIn logs the admin in and returns the client holding its cookies.
func signIn(t *testing.T, baseURL string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}
	resp := send(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", LoginRequest{
		Username: testAdmin,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return client
}
