// Package web serves the embedded site shell. The gate runs in front of
// it, so by the time a page is served the locale has been resolved and
// protected paths already carry a valid session.
package web

import (
	"embed"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/jmcleod/quill/locale"
)

//go:embed dist/*
var content embed.FS

const (
	langPlaceholder  = "{{lang}}"
	themePlaceholder = "{{theme}}"

	themeCookieName = "theme"
	defaultTheme    = "system"
)

var themes = []string{"light", "dark", "system"}

// Handler returns an http.Handler that serves the embedded assets. Any
// path that is not a file gets index.html, with the request's locale and
// theme filled in so the first paint matches the user's preferences.
func Handler(fallbackLocale string) (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	indexBytes, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}
	indexTemplate := string(indexBytes)

	static := http.FileServer(http.FS(fsys))

	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		lang, ok := locale.FromContext(r.Context())
		if !ok {
			lang = fallbackLocale
		}
		theme := defaultTheme
		if c, err := r.Cookie(themeCookieName); err == nil && slices.Contains(themes, c.Value) {
			theme = c.Value
		}
		body := strings.NewReplacer(
			langPlaceholder, html.EscapeString(lang),
			themePlaceholder, theme,
		).Replace(indexTemplate)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(body))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if cleanPath == "" || cleanPath == "." || cleanPath == "index.html" {
			serveIndex(w, r)
			return
		}
		if _, err := fs.Stat(fsys, cleanPath); err == nil {
			static.ServeHTTP(w, r)
			return
		}
		// Client-side routes.
		serveIndex(w, r)
	}), nil
}
