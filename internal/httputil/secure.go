// Package httputil holds small HTTP helpers shared by the gate, the guard
// and the API.
package httputil

import (
	"net/http"
	"strings"
)

// IsSecure reports whether r arrived over TLS, directly or through a proxy
// that says so.
func IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

// SetCookies writes every cookie in cookies to w.
func SetCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}
