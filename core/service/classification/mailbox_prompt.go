// Package classification assigns catalog tags to an email with one model call.
package classification

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/service/tagcatalog"
)

// DefaultBodyLimit is the number of body characters included in the prompt.
const DefaultBodyLimit = 2000

const truncationMarker = "..."

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	htmlDropRe   = regexp.MustCompile(`(?is)<(script|style|head)\b.*?</(script|style|head)\s*>`)
	whitespaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	emptyLinesRe = regexp.MustCompile(`\n\s*\n+`)
)

// TruncateBody cuts s to at most limit characters (runes, not bytes) and
// appends "..." when something was cut.
func TruncateBody(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + truncationMarker
}

// StripHTML reduces an HTML body to readable text.
func StripHTML(s string) string {
	s = htmlDropRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n", "</div>", "\n").Replace(s)
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = emptyLinesRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// PromptBody returns the text used for prompting: the plain body when there
// is one, otherwise the HTML body with markup removed.
func PromptBody(e *domain.EmailRecord) string {
	if body := strings.TrimSpace(e.BodyText); body != "" {
		return body
	}
	if e.BodyHTML != "" {
		return StripHTML(e.BodyHTML)
	}
	return ""
}

// BuildPrompt renders the classification prompt. It is a pure function of its inputs.
func BuildPrompt(e *domain.EmailRecord, entries []tagcatalog.Entry, bodyLimit int) string {
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}

	var b strings.Builder
	b.WriteString("You are an email classification assistant. Decide which of the tags below apply to the email.\n\n")

	b.WriteString("## Email\n")
	if e.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	}
	if s := e.DisplaySender(); s != "" {
		fmt.Fprintf(&b, "From: %s\n", s)
	}
	if r := e.DisplayRecipient(); r != "" {
		fmt.Fprintf(&b, "To: %s\n", r)
	}
	if body := PromptBody(e); body != "" {
		fmt.Fprintf(&b, "Body:\n%s\n", TruncateBody(body, bodyLimit))
	}

	b.WriteString("\n## Tags\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", entry.Name, entry.Criterion)
	}

	b.WriteString("\n## Answer format\n")
	b.WriteString("Return ONLY a JSON array with the names of every tag that applies, spelled exactly as listed above.\n")
	b.WriteString("Return [] if no tag applies. Do not add explanations.\n")
	b.WriteString(`Example: ["TagA", "TagB"]`)
	return b.String()
}
