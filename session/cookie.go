package session

import (
	"net/http"
	"time"
)

// Cookie returns the HttpOnly cookie carrying token.
func Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(DefaultTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie returns a cookie that removes the session cookie.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromRequest verifies the session cookie on r, if any.
func (c *Codec) FromRequest(r *http.Request) (Claims, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Claims{}, false
	}
	return c.Verify(cookie.Value)
}
