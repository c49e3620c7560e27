// Package csrf implements double-submit cookie CSRF tokens. The token lives
// in a cookie that page scripts can read, and every mutating request must
// echo it back in a form field or header.
package csrf

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/jmcleod/quill/internal/uuid"
)

const (
	CookieName = "csrf"
	FieldName  = "csrf"
	HeaderName = "X-CSRF-Token"
	TTL        = 8 * time.Hour
)

// Generate returns a fresh token from the system CSPRNG. There is no
// fallback source: a failure is returned to the caller.
func Generate() (string, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	return token, nil
}

// Verify reports whether the submitted token matches the cookie token.
// Both must be non-empty.
func Verify(cookieToken, submitted string) bool {
	if cookieToken == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted)) == 1
}

// Submitted returns the token echoed by the client: the form field when
// present, otherwise the header.
func Submitted(r *http.Request) string {
	if v := r.PostFormValue(FieldName); v != "" {
		return v
	}
	return r.Header.Get(HeaderName)
}

// FromCookie returns the token stored in the csrf cookie, or "".
func FromCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Check verifies the request's submitted token against its cookie.
func Check(r *http.Request) bool {
	return Verify(FromCookie(r), Submitted(r))
}

// Cookie returns the csrf cookie. It is intentionally NOT HttpOnly so that
// page scripts can copy it into outgoing forms.
func Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(TTL / time.Second),
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie removes the csrf cookie on logout.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	}
}
