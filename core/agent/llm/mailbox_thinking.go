package llm

import (
	"regexp"
	"strings"
)

var (
	// Closed blocks first, then an opener that never closes (generation cut off).
	thinkBlockRe    = regexp.MustCompile(`(?is)<(think|thinking)\b[^>]*>.*?</(think|thinking)\s*>`)
	thinkOpenTailRe = regexp.MustCompile(`(?is)<(think|thinking)\b[^>]*>.*$`)
	strayCloseRe    = regexp.MustCompile(`(?i)</(think|thinking)\s*>`)
	blankLinesRe    = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// StripThinking removes <think>/<thinking> reasoning segments from model output,
// including an unterminated trailing segment, then collapses blank lines and trims.
func StripThinking(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = thinkBlockRe.ReplaceAllString(s, "")
	s = thinkOpenTailRe.ReplaceAllString(s, "")
	for strayCloseRe.MatchString(s) {
		s = strayCloseRe.ReplaceAllString(s, "")
	}
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
