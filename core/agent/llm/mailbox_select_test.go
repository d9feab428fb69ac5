package llm

import "testing"

func TestResolveModel(t *testing.T) {
	installed := []string{"qwen3:4b", "llama3.2:latest", "gemma2:2b"}

	tests := []struct {
		name       string
		available  []string
		preferred  string
		configured string
		expected   string
	}{
		{"preferred present", installed, "gemma2:2b", "qwen3:4b", "gemma2:2b"},
		{"preferred missing uses configured", installed, "mistral", "qwen3:4b", "qwen3:4b"},
		{"untagged name matches latest", installed, "", "llama3.2", "llama3.2:latest"},
		{"nothing matches uses first", installed, "mistral", "phi3", "qwen3:4b"},
		{"empty preferred", installed, "  ", "gemma2:2b", "gemma2:2b"},
		{"no models", nil, "llama3.2", "llama3.2", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveModel(tt.available, tt.preferred, tt.configured); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestOpenAIBaseURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:11434":    "http://localhost:11434/v1",
		"http://localhost:11434/":   "http://localhost:11434/v1",
		"http://localhost:1234/v1":  "http://localhost:1234/v1",
		"http://localhost:1234/v1/": "http://localhost:1234/v1",
	}
	for in, want := range tests {
		if got := openAIBaseURL(in); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
