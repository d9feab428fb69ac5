package tagcatalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
	"smart_mailbox/pkg/logger"
)

// ReadSeedFile parses a YAML tag file. A missing file yields the defaults.
func ReadSeedFile(path string) ([]*domain.TagDefinition, error) {
	if path == "" {
		return domain.DefaultTags(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.DefaultTags(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tag file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML tag definitions. Tags without an explicit
// "active" key are active.
//
//	tags:
//	  - name: Urgent
//	    criterion: mentions a deadline or ASAP
//	    active: true
func ParseSeed(data []byte) ([]*domain.TagDefinition, error) {
	var raw struct {
		Tags []yaml.Node `yaml:"tags"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tag file: %w", err)
	}

	tags := make([]*domain.TagDefinition, 0, len(raw.Tags))
	for i := range raw.Tags {
		node := &raw.Tags[i]
		t := &domain.TagDefinition{IsActive: true}
		if err := node.Decode(t); err != nil {
			return nil, fmt.Errorf("tag %d: %w", i, err)
		}
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("tag %d: missing name", i)
		}
		if t.DisplayName == "" {
			t.DisplayName = t.Name
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// Seed stores every tag from seed that is not stored yet. Existing tags keep
// their stored settings so edits made by the user survive restarts.
func Seed(ctx context.Context, repo out.TagRepository, seed []*domain.TagDefinition) (int, error) {
	existing, err := repo.GetAllTags(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tags: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[t.Name] = struct{}{}
	}

	var missing []*domain.TagDefinition
	for _, t := range seed {
		if _, ok := have[t.Name]; !ok {
			missing = append(missing, t)
			have[t.Name] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if err := repo.UpsertTags(ctx, missing); err != nil {
		return 0, fmt.Errorf("store tags: %w", err)
	}
	logger.Info("Seeded %d tags", len(missing))
	return len(missing), nil
}
