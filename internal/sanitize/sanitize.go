// Package sanitize cleans free-text document content before it is placed
// into a model prompt.
package sanitize

import (
	"regexp"
	"strings"

	"conformity-backend/internal/textnorm"
)

// DefaultMaxLength is the rune cap applied when callers pass maxLength <= 0.
const DefaultMaxLength = 500_000

// Placeholder replaces injection phrasings so line structure is preserved.
const Placeholder = "[removido]"

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	templateTag = regexp.MustCompile(`(?s)\{%.*?%\}`)
	templateVar = regexp.MustCompile(`(?s)\{\{.*?\}\}`)

	injections = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\brole\b\s*:\s*["']?(system|assistant)\b["']?`),
		regexp.MustCompile(`(?i)\bsystem\b\s*:`),
		regexp.MustCompile(`(?i)\bignore\b.*\binstructions?\b`),
		regexp.MustCompile(`(?i)\bforget\b.*\bprevious\b`),
	}
)

// Sanitize truncates text to maxLength runes and then strips markup,
// templating and known prompt-injection phrasings. It never fails.
func Sanitize(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	out := textnorm.Prefix(text, maxLength)
	if out == "" {
		return ""
	}

	out = strings.ReplaceAll(out, "```", "")
	out = scriptBlock.ReplaceAllString(out, "")
	out = htmlTag.ReplaceAllString(out, "")
	out = templateTag.ReplaceAllString(out, "")
	out = templateVar.ReplaceAllString(out, "")
	for _, re := range injections {
		out = re.ReplaceAllString(out, Placeholder)
	}
	return strings.TrimSpace(out)
}
