package reply

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

// Temperature is higher than classification: replies need some variety.
const Temperature = 0.3

// MaxTokens caps reply length on the wire.
const MaxTokens = 500

// labelPrefixes are instruction labels models tend to echo at the start.
var labelPrefixes = []string{
	"답장:", "답변:", "회신:",
	"Reply:", "Response:", "Answer:", "Draft:",
}

// CleanReply trims the draft and strips echoed label prefixes.
func CleanReply(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := false
		for _, p := range labelPrefixes {
			if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

// Config tunes the drafter.
type Config struct {
	Model     string
	BodyLimit int
	Style     Style
}

// Drafter produces reply drafts through the model gateway.
type Drafter struct {
	gateway out.ModelGateway
	cfg     Config
	log     zerolog.Logger
}

func NewDrafter(gateway out.ModelGateway, cfg Config, log zerolog.Logger) *Drafter {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	cfg.Style = cfg.Style.withDefaults()
	return &Drafter{
		gateway: gateway,
		cfg:     cfg,
		log:     log.With().Str("component", "reply_drafter").Logger(),
	}
}

// DraftReply returns the cleaned draft, or ok=false when the model produced
// nothing usable. It never invents a placeholder.
func (d *Drafter) DraftReply(ctx context.Context, email *domain.EmailRecord) (string, bool) {
	prompt := BuildPrompt(email, d.cfg.Style, d.cfg.BodyLimit)

	raw, ok := d.gateway.GenerateText(ctx, prompt, out.GenerateOptions{
		Model:       d.cfg.Model,
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	})
	if !ok {
		d.log.Warn().Str("subject", email.Subject).Msg("reply drafting failed")
		return "", false
	}

	text := CleanReply(raw)
	if text == "" {
		d.log.Warn().Str("subject", email.Subject).Msg("model returned an empty reply")
		return "", false
	}
	d.log.Info().Str("subject", email.Subject).Int("chars", len([]rune(text))).Msg("reply drafted")
	return text, true
}
