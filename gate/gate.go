// Package gate runs in front of every page request. It validates the
// session cookie, keeps anonymous visitors out of the admin area, resolves
// the visitor's locale and issues the locale and CSRF cookies.
//
// Decide computes a Decision without touching the response; Middleware
// applies it.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmcleod/quill/csrf"
	"github.com/jmcleod/quill/internal/httputil"
	"github.com/jmcleod/quill/locale"
	"github.com/jmcleod/quill/session"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"

	// Query parameters the client adds to force a fresh render after a
	// locale switch. They are stripped with a redirect.
	langParam      = "_lang"
	timestampParam = "_ts"
)

// DefaultProtectedPrefixes are the admin area routes.
var DefaultProtectedPrefixes = []string{
	"/dashboard",
	"/writing",
	"/projects",
	"/project-list",
	"/blog-list",
	"/categories",
	"/users",
	"/logout",
}

// Kind classifies a request path.
type Kind int

const (
	Public Kind = iota
	Login
	Protected
)

func (k Kind) String() string {
	switch k {
	case Login:
		return "login"
	case Protected:
		return "protected"
	default:
		return "public"
	}
}

// Action is what the middleware does with a request.
type Action int

const (
	Pass Action = iota
	Redirect
)

// Decision is the outcome of Decide.
type Decision struct {
	Action   Action
	Location string
	Kind     Kind

	Authenticated bool
	Claims        session.Claims
	Locale        string

	// Cookies to set on the response, redirect or not.
	Cookies []*http.Cookie
}

// Config configures a Gate.
type Config struct {
	Sessions *session.Codec
	Locales  *locale.Resolver

	// ProtectedPrefixes defaults to DefaultProtectedPrefixes.
	ProtectedPrefixes []string

	// SkipPrefixes are served without any gate processing (static assets).
	SkipPrefixes []string

	// SecureCookies forces the Secure attribute; otherwise it follows the
	// request scheme.
	SecureCookies bool

	Logger *slog.Logger
}

type Gate struct {
	cfg Config
}

func New(cfg Config) (*Gate, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("gate: session codec is required")
	}
	if cfg.Locales == nil {
		return nil, fmt.Errorf("gate: locale resolver is required")
	}
	if cfg.ProtectedPrefixes == nil {
		cfg.ProtectedPrefixes = DefaultProtectedPrefixes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{cfg: cfg}, nil
}

// Classify returns the kind of path. A protected prefix matches the path
// itself and everything below it, but not siblings sharing its spelling
// ("/users" covers "/users/1", not "/usersettings").
func (g *Gate) Classify(path string) Kind {
	if path == LoginPath {
		return Login
	}
	for _, p := range g.cfg.ProtectedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return Protected
		}
	}
	return Public
}

func (g *Gate) secure(r *http.Request) bool {
	return g.cfg.SecureCookies || httputil.IsSecure(r)
}

// Decide computes what should happen to r. The only error is a failure
// to generate a CSRF token.
func (g *Gate) Decide(r *http.Request) (Decision, error) {
	d := Decision{Kind: g.Classify(r.URL.Path)}
	d.Claims, d.Authenticated = g.cfg.Sessions.FromRequest(r)
	if !d.Authenticated {
		d.Claims = session.Claims{}
	}
	secure := g.secure(r)

	if d.Kind == Login && d.Authenticated {
		d.Action = Redirect
		d.Location = DashboardPath
		if err := g.issueCSRF(r, &d, secure); err != nil {
			return Decision{}, err
		}
		return d, nil
	}

	if d.Kind == Protected && !d.Authenticated {
		d.Action = Redirect
		d.Location = LoginPath + "?" + url.Values{"from": {r.URL.Path}}.Encode()
		return d, nil
	}

	d.Locale = g.cfg.Locales.FromRequest(r)

	q := r.URL.Query()
	if q.Has(langParam) || q.Has(timestampParam) {
		q.Del(langParam)
		q.Del(timestampParam)
		clean := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}
		d.Action = Redirect
		d.Location = clean.RequestURI()
		return d, nil
	}

	if c, err := r.Cookie(locale.CookieName); err != nil || c.Value == "" {
		d.Cookies = append(d.Cookies, locale.Cookie(d.Locale, secure))
	}
	if d.Authenticated {
		if err := g.issueCSRF(r, &d, secure); err != nil {
			return Decision{}, err
		}
	}
	return d, nil
}

func (g *Gate) issueCSRF(r *http.Request, d *Decision, secure bool) error {
	if csrf.FromCookie(r) != "" {
		return nil
	}
	token, err := csrf.Generate()
	if err != nil {
		return err
	}
	d.Cookies = append(d.Cookies, csrf.Cookie(token, secure))
	return nil
}

func (g *Gate) skip(path string) bool {
	for _, p := range g.cfg.SkipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Middleware applies Decide to every request.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		d, err := g.Decide(r)
		if err != nil {
			g.cfg.Logger.ErrorContext(r.Context(), "gate decision failed", "path", r.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		httputil.SetCookies(w, d.Cookies)
		if d.Action == Redirect {
			http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			return
		}

		r.Header.Set(locale.HeaderName, d.Locale)
		ctx := locale.WithLocale(r.Context(), d.Locale)
		if d.Authenticated {
			ctx = WithClaims(ctx, d.Claims)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying authenticated session claims.
func WithClaims(ctx context.Context, c session.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by the gate for an
// authenticated request.
func ClaimsFromContext(ctx context.Context) (session.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(session.Claims)
	return c, ok
}

// SafeReturnPath validates a post-login return target. Only same-origin
// absolute paths are accepted, and never the login page itself; anything
// else yields fallback.
func SafeReturnPath(raw, fallback string) string {
	if raw == "" || raw[0] != '/' {
		return fallback
	}
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return fallback
	}
	if strings.ContainsAny(raw, "\\\r\n\t") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	if u.Path == LoginPath || strings.HasPrefix(u.Path, LoginPath+"/") {
		return fallback
	}
	return raw
}
