// Package llm is the gateway to the locally hosted language model.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"smart_mailbox/core/port/out"
	"smart_mailbox/pkg/httputil"
	"smart_mailbox/pkg/metrics"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultServerURL = "http://localhost:11434"
	DefaultModel     = "llama3.2"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 1024
)

// GatewayConfig is fixed for the lifetime of a Gateway.
type GatewayConfig struct {
	Provider        string
	ServerURL       string
	APIKey          string
	Model           string
	Timeout         time.Duration
	MaxTokens       int // ceiling applied when a call does not ask for less
	DisableThinking bool
	// BreakerFailures consecutive failures open the breaker; 0 disables it.
	BreakerFailures int
	BreakerCooldown time.Duration
}

func (c *GatewayConfig) withDefaults() GatewayConfig {
	cfg := *c
	if cfg.Provider == "" {
		cfg.Provider = ProviderOllama
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return cfg
}

// Gateway implements out.ModelGateway. It is immutable after construction.
type Gateway struct {
	cfg       GatewayConfig
	transport transport
	closeIdle func()
	cb        *gobreaker.CircuitBreaker
	lists     singleflight.Group
	latency   *metrics.Registry
	log       zerolog.Logger
}

// NewGateway builds a gateway for cfg.
func NewGateway(cfg GatewayConfig, log zerolog.Logger) *Gateway {
	cfg = cfg.withDefaults()
	httpClient := httputil.NewClient(httputil.LocalModelClientConfig(cfg.Timeout))

	var t transport
	switch cfg.Provider {
	case ProviderOpenAI:
		t = newOpenAITransport(cfg.ServerURL, cfg.APIKey, httpClient)
	default:
		t = newOllamaTransport(cfg.ServerURL, httpClient)
	}

	g := newGateway(cfg, t, log)
	g.closeIdle = func() { httputil.CloseIdle(httpClient) }
	return g
}

func newGateway(cfg GatewayConfig, t transport, log zerolog.Logger) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		transport: t,
		closeIdle: func() {},
		latency:   metrics.NewRegistry(200),
		log: log.With().
			Str("component", "model_gateway").
			Str("provider", t.name()).
			Str("server", cfg.ServerURL).
			Logger(),
	}
	if cfg.BreakerFailures > 0 {
		g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "model-server",
			MaxRequests: 1, // Half-open 상태에서는 한 번만 시도
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("model breaker state changed")
			},
		})
	}
	return g
}

// Config returns the settings this gateway was built with.
func (g *Gateway) Config() GatewayConfig {
	return g.cfg
}

// ListModels returns installed model names. Concurrent callers share one request.
func (g *Gateway) ListModels(ctx context.Context) ([]string, error) {
	v, err, _ := g.lists.Do("models", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		start := time.Now()
		models, err := g.transport.listModels(ctx)
		g.latency.Record("list_models", time.Since(start), err == nil)
		return models, err
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// CheckConnection reports whether the server answers and which models it has.
func (g *Gateway) CheckConnection(ctx context.Context) (bool, []string) {
	models, err := g.ListModels(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("model server unreachable")
		return false, []string{}
	}
	return true, models
}

// SelectModel resolves preferred against the installed models.
func (g *Gateway) SelectModel(ctx context.Context, preferred string) (string, bool) {
	models, err := g.ListModels(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("cannot list models")
		return "", false
	}
	model := ResolveModel(models, preferred, g.cfg.Model)
	if model == "" {
		return "", false
	}
	if want := firstNonEmpty(preferred, g.cfg.Model); model != want && !sameModel(model, want) {
		g.log.Info().Str("requested", want).Str("using", model).Msg("requested model not installed, falling back")
	}
	return model, true
}

// GenerateText runs one completion and returns the output with reasoning removed.
func (g *Gateway) GenerateText(ctx context.Context, prompt string, opts out.GenerateOptions) (string, bool) {
	if g.cb != nil && g.cb.State() == gobreaker.StateOpen {
		g.log.Warn().Msg("model breaker open, skipping call")
		return "", false
	}

	model, ok := g.SelectModel(ctx, opts.Model)
	if !ok {
		g.log.Error().Msg("no model available")
		return "", false
	}

	maxTokens := g.cfg.MaxTokens
	if opts.MaxTokens > 0 && opts.MaxTokens < maxTokens {
		maxTokens = opts.MaxTokens
	}
	req := generateRequest{
		Model:           model,
		Prompt:          prompt,
		Temperature:     opts.Temperature,
		MaxTokens:       maxTokens,
		DisableThinking: g.cfg.DisableThinking,
	}

	start := time.Now()
	raw, err := g.execute(ctx, req)
	elapsed := time.Since(start)
	g.latency.Record("generate", elapsed, err == nil)

	if err != nil {
		ev := g.log.Error().Err(err).Str("model", model).Dur("elapsed", elapsed)
		if errors.Is(err, context.DeadlineExceeded) {
			ev = ev.Bool("timeout", true)
		}
		ev.Msg("generation failed")
		return "", false
	}

	text := StripThinking(raw)
	g.log.Debug().Str("model", model).Dur("elapsed", elapsed).Int("chars", len(text)).Msg("generation done")
	return text, true
}

func (g *Gateway) execute(ctx context.Context, req generateRequest) (string, error) {
	call := func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		return g.transport.generate(ctx, req)
	}
	if g.cb == nil {
		return call()
	}
	v, err := g.cb.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Stats returns per-operation latency of calls made through this gateway.
func (g *Gateway) Stats() map[string]metrics.LatencyStats {
	return g.latency.AllStats()
}

// Close releases pooled connections.
func (g *Gateway) Close() {
	g.closeIdle()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sameModel(installed, name string) bool {
	return installed == name+":latest"
}

var _ out.ModelGateway = (*Gateway)(nil)
