// Package guard protects state-changing operations. Every mutating
// handler runs behind one of its checks: a valid session, a matching CSRF
// token, and for administrative actions the admin role.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/quill/csrf"
	"github.com/jmcleod/quill/session"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCSRF never says which token was expected or received.
	ErrCSRF      = errors.New("invalid csrf token")
	ErrForbidden = errors.New("forbidden")
)

// Principal is the caller of an authorized action.
type Principal struct {
	UserID   string
	Username string
	Role     string
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == session.RoleAdmin }

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type Guard struct {
	sessions *session.Codec
	onError  ErrorHandler
}

type Option func(*Guard)

// WithErrorHandler replaces the default JSON rejection response.
func WithErrorHandler(h ErrorHandler) Option {
	return func(g *Guard) { g.onError = h }
}

func New(sessions *session.Codec, opts ...Option) *Guard {
	g := &Guard{sessions: sessions, onError: writeError}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate checks the session cookie only.
func (g *Guard) Authenticate(r *http.Request) (Principal, error) {
	claims, ok := g.sessions.FromRequest(r)
	if !ok || claims.Subject == "" {
		return Principal{}, ErrNotAuthenticated
	}
	return Principal{UserID: claims.Subject, Username: claims.Username, Role: claims.Role}, nil
}

// Verify checks the session and then the double-submitted CSRF token.
func (g *Guard) Verify(r *http.Request) (Principal, error) {
	p, err := g.Authenticate(r)
	if err != nil {
		return Principal{}, err
	}
	if !csrf.Check(r) {
		return Principal{}, ErrCSRF
	}
	return p, nil
}

// VerifyAdmin is Verify plus the admin role.
func (g *Guard) VerifyAdmin(r *http.Request) (Principal, error) {
	p, err := g.Verify(r)
	if err != nil {
		return Principal{}, err
	}
	if !p.IsAdmin() {
		return Principal{}, ErrForbidden
	}
	return p, nil
}

func (g *Guard) authenticateAdmin(r *http.Request) (Principal, error) {
	p, err := g.Authenticate(r)
	if err != nil {
		return Principal{}, err
	}
	if !p.IsAdmin() {
		return Principal{}, ErrForbidden
	}
	return p, nil
}

func (g *Guard) require(check func(*http.Request) (Principal, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := check(r)
			if err != nil {
				g.onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireSession admits requests with a valid session.
func (g *Guard) RequireSession(next http.Handler) http.Handler {
	return g.require(g.Authenticate)(next)
}

// RequireAction admits requests that pass Verify.
func (g *Guard) RequireAction(next http.Handler) http.Handler {
	return g.require(g.Verify)(next)
}

// RequireAdminAction admits requests that pass VerifyAdmin.
func (g *Guard) RequireAdminAction(next http.Handler) http.Handler {
	return g.require(g.VerifyAdmin)(next)
}

// RequireAdmin admits admin sessions without a CSRF check, for reads.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return g.require(g.authenticateAdmin)(next)
}

// StatusCode maps a guard error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrCSRF), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "message": err.Error()})
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by a Require middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
