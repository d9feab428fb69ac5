// Package reply drafts answers to emails that were tagged as needing a reply.
package reply

import (
	"fmt"
	"strings"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/service/classification"
)

// DefaultBodyLimit is the number of body characters quoted in the reply prompt.
const DefaultBodyLimit = 1500

// Tone of the drafted reply.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneCasual       Tone = "casual"
)

var toneInstructions = map[Tone]string{
	ToneProfessional: "in a professional, polite business tone",
	ToneFriendly:     "in a friendly, warm tone",
	ToneCasual:       "in a relaxed, natural tone",
}

// ParseTone maps a setting value to a Tone, defaulting to professional.
func ParseTone(s string) Tone {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := toneInstructions[t]; ok {
		return t
	}
	return ToneProfessional
}

// Style holds the fixed instructions embedded in every reply prompt.
type Style struct {
	Tone     Tone
	Language string
	// MinChars and MaxChars are length guidance for the model, not enforced.
	MinChars int
	MaxChars int
	Closings []string
}

// DefaultClosings returns the closing phrases for a language.
func DefaultClosings(language string) []string {
	switch strings.ToLower(language) {
	case "korean", "ko", "한국어":
		return []string{"감사합니다.", "안부 전합니다."}
	default:
		return []string{"Thank you.", "Best regards."}
	}
}

func (s Style) withDefaults() Style {
	if s.Tone == "" {
		s.Tone = ToneProfessional
	}
	if s.Language == "" {
		s.Language = "English"
	}
	if s.MinChars <= 0 {
		s.MinChars = 200
	}
	if s.MaxChars < s.MinChars {
		s.MaxChars = 400
	}
	if len(s.Closings) == 0 {
		s.Closings = DefaultClosings(s.Language)
	}
	return s
}

// BuildPrompt renders the reply prompt for email.
func BuildPrompt(email *domain.EmailRecord, style Style, bodyLimit int) string {
	style = style.withDefaults()
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a reply to the following email %s.\n\n", toneInstructions[style.Tone])

	b.WriteString("Original email:\n")
	if email.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	}
	if s := email.DisplaySender(); s != "" {
		fmt.Fprintf(&b, "From: %s\n", s)
	}
	if body := classification.PromptBody(email); body != "" {
		fmt.Fprintf(&b, "Content:\n%s\n", classification.TruncateBody(body, bodyLimit))
	}

	b.WriteString("\nGuidelines:\n")
	fmt.Fprintf(&b, "- Write in %s.\n", style.Language)
	b.WriteString("- Address the main points of the original email and answer its questions or propose next steps.\n")
	fmt.Fprintf(&b, "- Keep it between %d and %d characters.\n", style.MinChars, style.MaxChars)
	fmt.Fprintf(&b, "- End with one of: %s\n", quoteAll(style.Closings))
	b.WriteString("- Output only the reply body. No subject line, no labels, no commentary.\n")
	return b.String()
}

func quoteAll(phrases []string) string {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return strings.Join(quoted, " or ")
}
