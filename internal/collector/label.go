package collector

import (
	"strings"
	"unicode"
)

// maxLabelLen bounds the folder and archive base name.
const maxLabelLen = 100

// SanitizeLabel turns a user-supplied label into a single safe path segment.
// It returns "" when nothing usable remains.
func SanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(label) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := strings.Trim(b.String(), " .")
	if len(clean) > maxLabelLen {
		clean = strings.TrimRight(clean[:maxLabelLen], " .")
	}
	if strings.Trim(clean, "_") == "" {
		return ""
	}
	return clean
}
