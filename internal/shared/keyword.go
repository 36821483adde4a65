package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var keywordFolder = cases.Fold()

// NormalizeKeyword prepares a user-supplied search keyword for comparison:
// trims whitespace and applies Unicode case folding so filters behave the
// same for "Réseau" and "réseau".
func NormalizeKeyword(raw string) string {
	return keywordFolder.String(strings.TrimSpace(raw))
}

// TitleCase renders a display name with language-aware title casing.
// Existing uppercase runs are preserved so acronyms like "IT" survive.
func TitleCase(raw string) string {
	return cases.Title(language.English, cases.NoLower).String(strings.TrimSpace(raw))
}
