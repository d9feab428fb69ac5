package out

import "context"

// GenerateOptions tunes one generation call. Zero values mean "use the gateway default".
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ModelGateway is the single point of contact with the local LLM server.
// Implementations are immutable; new settings mean a new gateway.
type ModelGateway interface {
	// CheckConnection never fails: an unreachable server yields (false, nil).
	CheckConnection(ctx context.Context) (bool, []string)
	ListModels(ctx context.Context) ([]string, error)
	// SelectModel resolves the model to use; ok is false when none is installed.
	SelectModel(ctx context.Context, preferred string) (model string, ok bool)
	// GenerateText returns the cleaned completion, or ok=false on any
	// transport, protocol or model-resolution failure. It never retries.
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (text string, ok bool)
	Close()
}
