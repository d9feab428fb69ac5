package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// AISettingsFile is the name of the persisted model settings file.
const AISettingsFile = "ai_config.json"

// AISettings are the user-editable model server settings.
type AISettings struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	ServerURL       string `json:"server_url"`
	TimeoutSec      int    `json:"timeout"`
	MaxTokens       int    `json:"max_tokens"`
	DisableThinking bool   `json:"disable_thinking"`
}

// AISettingsPatch carries the fields a caller wants to change.
type AISettingsPatch struct {
	Provider        *string `json:"provider,omitempty"`
	Model           *string `json:"model,omitempty"`
	ServerURL       *string `json:"server_url,omitempty"`
	TimeoutSec      *int    `json:"timeout,omitempty"`
	MaxTokens       *int    `json:"max_tokens,omitempty"`
	DisableThinking *bool   `json:"disable_thinking,omitempty"`
}

// DefaultAISettings derives the initial settings from the process config.
func (c *Config) DefaultAISettings() AISettings {
	return AISettings{
		Provider:        c.LLMProvider,
		Model:           c.LLMModel,
		ServerURL:       c.LLMServerURL,
		TimeoutSec:      c.LLMTimeoutSec,
		MaxTokens:       c.LLMMaxTokens,
		DisableThinking: c.LLMDisableThinking,
	}
}

// Validate rejects settings that cannot build a gateway.
func (s AISettings) Validate() error {
	switch s.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.ServerURL == "" {
		return fmt.Errorf("server_url is empty")
	}
	if s.TimeoutSec <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// Apply returns s with the patch fields overlaid.
func (s AISettings) Apply(p AISettingsPatch) AISettings {
	if p.Provider != nil {
		s.Provider = *p.Provider
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.ServerURL != nil {
		s.ServerURL = *p.ServerURL
	}
	if p.TimeoutSec != nil {
		s.TimeoutSec = *p.TimeoutSec
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	if p.DisableThinking != nil {
		s.DisableThinking = *p.DisableThinking
	}
	return s
}

// AISettingsStore keeps AISettings in $DATA_DIR/ai_config.json.
type AISettingsStore struct {
	mu       sync.RWMutex
	path     string
	settings AISettings
}

// LoadAISettings reads the settings file, merging stored values over
// defaults. A missing or unreadable file is rewritten with the defaults.
func LoadAISettings(dir string, defaults AISettings) (*AISettingsStore, error) {
	s := &AISettingsStore{path: filepath.Join(dir, AISettingsFile), settings: defaults}

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return s, s.save(defaults)
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	merged := defaults
	if err := json.Unmarshal(data, &merged); err != nil {
		// 손상된 파일은 기본값으로 복구
		return s, s.save(defaults)
	}
	if err := merged.Validate(); err != nil {
		return s, s.save(defaults)
	}
	s.settings = merged
	return s, nil
}

// Get returns the current settings.
func (s *AISettingsStore) Get() AISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update validates, stores and returns the patched settings.
func (s *AISettingsStore) Update(p AISettingsPatch) (AISettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Apply(p)
	if err := next.Validate(); err != nil {
		return s.settings, err
	}
	if err := s.save(next); err != nil {
		return s.settings, err
	}
	s.settings = next
	return next, nil
}

// Path is the settings file location.
func (s *AISettingsStore) Path() string {
	return s.path
}

func (s *AISettingsStore) save(settings AISettings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}
