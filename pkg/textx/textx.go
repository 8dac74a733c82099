// Package textx provides small text helpers shared by the extraction
// adapters.
package textx

import (
	"strings"
)

// SanitizeText strips control characters (keeping tab, newline, and CR) and
// trims surrounding whitespace. Extracted document text passes through here
// before being handed to the LLM.
func SanitizeText(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(cleaned)
}
