package content

import (
	"strings"
	"unicode/utf8"
)

// introLength is the number of characters taken from the content when a
// post has no explicit intro.
const introLength = 200

// SplitTags splits a comma or newline separated tag list, trimming blanks
// and dropping duplicates while keeping first-seen order.
func SplitTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == '，'
	})
	tags := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tag := strings.TrimSpace(f)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// Excerpt returns the first n characters (not bytes) of s.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
