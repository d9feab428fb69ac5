package llm

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openaiTransport talks to an OpenAI-compatible endpoint. Ollama serves one
// under /v1, and so do most other local model servers.
type openaiTransport struct {
	client *openai.Client
}

func newOpenAITransport(baseURL, apiKey string, httpClient *http.Client) *openaiTransport {
	if apiKey == "" {
		apiKey = "ollama" // local servers ignore the key, the client requires one
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openAIBaseURL(baseURL)
	cfg.HTTPClient = httpClient
	return &openaiTransport{client: openai.NewClientWithConfig(cfg)}
}

func openAIBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}

func (t *openaiTransport) name() string { return "openai" }

func (t *openaiTransport) listModels(ctx context.Context) ([]string, error) {
	list, err := t.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID != "" {
			names = append(names, m.ID)
		}
	}
	return names, nil
}

func (t *openaiTransport) generate(ctx context.Context, r generateRequest) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: r.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: r.Prompt},
		},
		Temperature: float32(r.Temperature),
		MaxTokens:   r.MaxTokens,
	}
	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
