// Package slug normalizes user-supplied sub-module code hints into storage
// codes. Codes are lowercase `[a-z0-9_]+`; normalization is idempotent.
package slug

import (
	"strings"
	"unicode"

	"github.com/lumacrm/luma/pkg/apperr"
)

// Normalize lowercases the hint, collapses whitespace runs to a single
// underscore and strips every remaining character outside [a-z0-9_].
// An empty result is a bad request.
func Normalize(hint string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(hint))

	var b strings.Builder
	b.Grow(len(lowered))
	inSpace := false
	for _, r := range lowered {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte('_')
			inSpace = false
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}

	code := b.String()
	if code == "" {
		return "", apperr.NewBadRequest("code must contain at least one of [a-z0-9_]")
	}
	return code, nil
}

// Valid reports whether code is already in normalized form.
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
