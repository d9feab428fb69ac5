package classification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
	"smart_mailbox/core/service/tagcatalog"
)

// Temperature is kept low: tagging is a yes/no decision, not prose.
const Temperature = 0.1

// Config tunes the engine.
type Config struct {
	Model     string // preferred model, empty = gateway default
	BodyLimit int
}

// Engine classifies emails against a tag catalog.
type Engine struct {
	gateway out.ModelGateway
	cfg     Config
	log     zerolog.Logger
}

func NewEngine(gateway out.ModelGateway, cfg Config, log zerolog.Logger) *Engine {
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	return &Engine{
		gateway: gateway,
		cfg:     cfg,
		log:     log.With().Str("component", "classifier").Logger(),
	}
}

// Classify makes exactly one model call. It returns ok=false only when the
// gateway produced nothing; malformed output still yields a (possibly empty)
// result. The email is not modified.
func (e *Engine) Classify(ctx context.Context, email *domain.EmailRecord, catalog *tagcatalog.Catalog) (*domain.ClassificationResult, bool) {
	if catalog == nil || catalog.Len() == 0 {
		e.log.Debug().Str("subject", email.Subject).Msg("no active tags, nothing to classify")
		return domain.EmptyClassification(), true
	}

	prompt := BuildPrompt(email, catalog.Entries(), e.cfg.BodyLimit)

	start := time.Now()
	raw, ok := e.gateway.GenerateText(ctx, prompt, out.GenerateOptions{
		Model:       e.cfg.Model,
		Temperature: Temperature,
	})
	if !ok {
		e.log.Warn().Str("subject", email.Subject).Msg("classification failed: model unavailable")
		return nil, false
	}

	result, strategy := ParseResponse(raw, catalog)
	e.log.Info().
		Str("subject", email.Subject).
		Strs("tags", result.MatchedTags).
		Str("strategy", string(strategy)).
		Dur("elapsed", time.Since(start)).
		Msg("email classified")
	return result, true
}
