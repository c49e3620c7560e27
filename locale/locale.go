// Package locale decides which UI language a request is served in.
//
// Precedence is: a supported value in the locale cookie, then the first
// supported primary language subtag in Accept-Language (by q-value), then
// the configured default.
package locale

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	CookieName = "locale"
	// HeaderName carries the resolved locale to downstream handlers.
	HeaderName = "X-Quill-Locale"
	CookieTTL  = 365 * 24 * time.Hour
)

// Resolver resolves request locales against a fixed supported set.
type Resolver struct {
	supported []string
	fallback  string
}

// NewResolver returns a Resolver. fallback must be one of supported.
func NewResolver(supported []string, fallback string) (*Resolver, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("no supported locales configured")
	}
	if !slices.Contains(supported, fallback) {
		return nil, fmt.Errorf("default locale %q is not one of %v", fallback, supported)
	}
	return &Resolver{supported: slices.Clone(supported), fallback: fallback}, nil
}

// Default returns the fallback locale.
func (r *Resolver) Default() string { return r.fallback }

// Supported returns the supported locales in configuration order.
func (r *Resolver) Supported() []string { return slices.Clone(r.supported) }

// IsSupported reports whether v is exactly one of the supported locales.
func (r *Resolver) IsSupported(v string) bool {
	return slices.Contains(r.supported, v)
}

// Resolve applies cookie > Accept-Language > default precedence.
func (r *Resolver) Resolve(cookieValue, acceptLanguage string) string {
	if r.IsSupported(cookieValue) {
		return cookieValue
	}
	for _, base := range primarySubtags(acceptLanguage) {
		if r.IsSupported(base) {
			return base
		}
	}
	return r.fallback
}

// FromRequest resolves the locale for req from its cookie and headers.
func (r *Resolver) FromRequest(req *http.Request) string {
	var cookieValue string
	if c, err := req.Cookie(CookieName); err == nil {
		cookieValue = c.Value
	}
	return r.Resolve(cookieValue, req.Header.Get("Accept-Language"))
}

// primarySubtags returns the lower-case primary language subtag of every
// acceptable entry of an Accept-Language header, best first.
func primarySubtags(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	tags, q, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return lenientSubtags(header)
	}
	out := make([]string, 0, len(tags))
	for i, tag := range tags {
		if q[i] <= 0 {
			continue
		}
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

// lenientSubtags handles headers x/text rejects, keeping header order.
func lenientSubtags(header string) []string {
	var out []string
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(part, ";")
		base, _, _ := strings.Cut(strings.TrimSpace(tag), "-")
		if base = strings.ToLower(base); base != "" {
			out = append(out, base)
		}
	}
	return out
}

// Cookie returns the long-lived locale preference cookie.
func Cookie(value string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(CookieTTL / time.Second),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type contextKey struct{}

// WithLocale returns a copy of ctx carrying the resolved locale.
func WithLocale(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, contextKey{}, value)
}

// FromContext returns the locale stored by WithLocale.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextKey{}).(string)
	return v, ok && v != ""
}
