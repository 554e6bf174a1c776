package utils

import (
	"strings"
	"unicode"
)

// GenerateSlug lower-cases s and joins runs of letters and digits with "-".
// Non-Latin letters are kept so Arabic names produce readable slugs.
func GenerateSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash && b.Len() > 0 {
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// NormalizeSlug trims and lower-cases an explicit slug, or derives one from fallback.
func NormalizeSlug(slug, fallback string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug != "" {
		return slug
	}
	return GenerateSlug(fallback)
}
