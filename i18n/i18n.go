// Package i18n holds the translated messages returned by the API.
//
// Catalogs are nested JSON documents flattened to dotted keys, so
// {"auth": {"rateLimited": "..."}} is looked up as "auth.rateLimited".
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed locales/*.json
var embeddedLocales embed.FS

// Catalog maps locale -> key -> message. It is read-only after loading.
type Catalog struct {
	messages map[string]map[string]string
	fallback string
}

// Load reads <locale>.json for each locale from fsys.
func Load(fsys fs.FS, locales []string, fallback string) (*Catalog, error) {
	c := &Catalog{messages: make(map[string]map[string]string, len(locales)), fallback: fallback}
	for _, loc := range locales {
		name := loc + ".json"
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading translation file %s: %w", name, err)
		}
		var nested map[string]any
		if err := json.Unmarshal(data, &nested); err != nil {
			return nil, fmt.Errorf("parsing translation file %s: %w", name, err)
		}
		flat := make(map[string]string)
		flatten("", nested, flat)
		c.messages[loc] = flat
	}
	if _, ok := c.messages[fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %q has no catalog", fallback)
	}
	return c, nil
}

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded(locales []string, fallback string) (*Catalog, error) {
	sub, err := fs.Sub(embeddedLocales, "locales")
	if err != nil {
		return nil, err
	}
	return Load(sub, locales, fallback)
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		}
	}
}

// Localizer translates keys for one locale.
type Localizer struct {
	catalog *Catalog
	locale  string
}

// Localizer returns a Localizer for locale; unknown locales use the fallback.
func (c *Catalog) Localizer(locale string) *Localizer {
	if _, ok := c.messages[locale]; !ok {
		locale = c.fallback
	}
	return &Localizer{catalog: c, locale: locale}
}

// Locale returns the locale the localizer translates into.
func (l *Localizer) Locale() string { return l.locale }

// T returns the message for key, falling back to the default locale and
// finally to the key itself.
func (l *Localizer) T(key string) string {
	if msg, ok := l.catalog.messages[l.locale][key]; ok {
		return msg
	}
	if msg, ok := l.catalog.messages[l.catalog.fallback][key]; ok {
		return msg
	}
	return key
}

// TWithParams replaces {{name}} placeholders in the translated message.
func (l *Localizer) TWithParams(key string, params map[string]string) string {
	msg := l.T(key)
	for k, v := range params {
		msg = strings.ReplaceAll(msg, "{{"+k+"}}", v)
	}
	return msg
}
