package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"smart_mailbox/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:        "test",
		DataDir:            t.TempDir(),
		StorageDriver:      config.StorageJSON,
		LLMProvider:        "ollama",
		LLMServerURL:       "http://127.0.0.1:1", // nothing listens here
		LLMModel:           "llama3.2",
		LLMTimeoutSec:      1,
		LLMMaxTokens:       256,
		LLMDisableThinking: true,
		NeedsReplyTag:      "NeedsReply",
		BatchQueueSize:     4,
	}
}

func TestNewDependenciesSeedsTags(t *testing.T) {
	deps, cleanup, err := NewDependencies(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	tags, err := deps.Store.GetAllTags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) == 0 {
		t.Error("expected default tags to be seeded")
	}
	if deps.Redis != nil {
		t.Error("expected no redis without REDIS_URL")
	}
	if ok, _ := deps.Pipeline.CheckConnection(context.Background()); ok {
		t.Error("expected unreachable model server")
	}
}

func TestApplySettings(t *testing.T) {
	deps, cleanup, err := NewDependencies(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	bad := deps.Settings.Get()
	bad.Provider = "unknown"
	if err := deps.ApplySettings(bad); err == nil {
		t.Error("expected invalid settings to be rejected")
	}
	if err := deps.ApplySettings(deps.Settings.Get()); err != nil {
		t.Errorf("expected settings to apply, got %v", err)
	}
}

func TestNewAPIRoutes(t *testing.T) {
	deps, cleanup, err := NewDependencies(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	app := NewAPI(deps)

	tests := []struct {
		target string
		status int
	}{
		{"/health", 200},
		{"/ready", 503}, // model server down
		{"/api/stats", 200},
		{"/api/settings/ai", 200},
		{"/api/emails", 200},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.target, nil), 5000)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.status, resp.StatusCode)
		}
	}
}
