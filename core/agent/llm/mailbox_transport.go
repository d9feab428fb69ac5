package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// ErrEmptyResponse is returned when the server answered 200 with no text.
var ErrEmptyResponse = errors.New("empty model response")

type generateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// DisableThinking asks the server not to emit reasoning.
	DisableThinking bool
}

// transport is one wire protocol to the model server.
type transport interface {
	name() string
	listModels(ctx context.Context) ([]string, error)
	generate(ctx context.Context, req generateRequest) (string, error)
}

// =============================================================================
// Ollama native API
// =============================================================================

type ollamaTransport struct {
	baseURL string
	client  *http.Client
}

func newOllamaTransport(baseURL string, client *http.Client) *ollamaTransport {
	return &ollamaTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *ollamaTransport) name() string { return "ollama" }

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Think   *bool         `json:"think,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (t *ollamaTransport) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var out ollamaTagsResponse
	if err := t.do(req, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func (t *ollamaTransport) generate(ctx context.Context, r generateRequest) (string, error) {
	payload := ollamaGenerateRequest{
		Model:  r.Model,
		Prompt: r.Prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: r.Temperature,
			NumPredict:  r.MaxTokens,
		},
	}
	if r.DisableThinking {
		think := false
		payload.Think = &think
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out ollamaGenerateResponse
	if err := t.do(req, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}
	return out.Response, nil
}

func (t *ollamaTransport) do(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
