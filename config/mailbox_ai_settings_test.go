package config

import (
	"os"
	"path/filepath"
	"testing"
)

func defaultSettings() AISettings {
	return AISettings{
		Provider:        "ollama",
		Model:           "llama3.2",
		ServerURL:       "http://localhost:11434",
		TimeoutSec:      60,
		MaxTokens:       1024,
		DisableThinking: true,
	}
}

func TestLoadAISettingsCreatesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadAISettings(dir, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if s.Get() != defaultSettings() {
		t.Errorf("expected defaults, got %+v", s.Get())
	}
	if _, err := os.Stat(filepath.Join(dir, AISettingsFile)); err != nil {
		t.Errorf("expected settings file: %v", err)
	}
}

func TestLoadAISettingsMergesStored(t *testing.T) {
	dir := t.TempDir()
	stored := `{"model": "qwen3:8b", "temperature": 0.7}`
	if err := os.WriteFile(filepath.Join(dir, AISettingsFile), []byte(stored), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadAISettings(dir, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	got := s.Get()
	if got.Model != "qwen3:8b" {
		t.Errorf("expected stored model, got %q", got.Model)
	}
	if got.ServerURL != "http://localhost:11434" || got.MaxTokens != 1024 {
		t.Errorf("expected defaults for missing keys, got %+v", got)
	}
}

func TestLoadAISettingsCorruptResets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, AISettingsFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadAISettings(dir, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if s.Get() != defaultSettings() {
		t.Errorf("expected defaults, got %+v", s.Get())
	}

	reloaded, err := LoadAISettings(dir, AISettings{})
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Get() != defaultSettings() {
		t.Errorf("expected rewritten defaults, got %+v", reloaded.Get())
	}
}

func TestUpdateAISettings(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadAISettings(dir, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}

	model := "mistral"
	thinking := false
	got, err := s.Update(AISettingsPatch{Model: &model, DisableThinking: &thinking})
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "mistral" || got.DisableThinking {
		t.Errorf("unexpected settings %+v", got)
	}

	reloaded, err := LoadAISettings(dir, defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Get() != got {
		t.Errorf("expected persisted %+v, got %+v", got, reloaded.Get())
	}
}

func TestUpdateAISettingsRejectsInvalid(t *testing.T) {
	s, err := LoadAISettings(t.TempDir(), defaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	zero := 0
	if _, err := s.Update(AISettingsPatch{TimeoutSec: &zero}); err == nil {
		t.Error("expected validation error")
	}
	if s.Get().TimeoutSec != 60 {
		t.Errorf("expected unchanged timeout, got %d", s.Get().TimeoutSec)
	}
}
