package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var wsRe = regexp.MustCompile(`\s+`)
var nonSlug = regexp.MustCompile(`[^a-z0-9\-]+`)
var multiDash = regexp.MustCompile(`\-+`)

// NormalizeNameLower collapses whitespace and lowercases, for case-insensitive
// sorting of names.
func NormalizeNameLower(s string) string {
	s = strings.TrimSpace(s)
	s = wsRe.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}

// Slugify reduces a name to [a-z0-9-]. Accents are stripped after NFKD
// decomposition; other non-ASCII letters are dropped.
func Slugify(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	t := norm.NFKD.String(name)
	b := make([]rune, 0, len(t))
	for _, r := range t {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b = append(b, unicode.ToLower(r))
			continue
		}
		if unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' {
			b = append(b, '-')
			continue
		}
	}
	out := string(b)
	out = nonSlug.ReplaceAllString(out, "-")
	out = multiDash.ReplaceAllString(out, "-")
	out = strings.Trim(out, "-")
	return out
}
