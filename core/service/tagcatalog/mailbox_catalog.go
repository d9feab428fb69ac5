// Package tagcatalog exposes the active tags to the classification pipeline.
package tagcatalog

import (
	"context"
	"fmt"
	"strings"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

// Entry is one active tag with its criterion.
type Entry struct {
	Name      string
	Criterion string
}

// Catalog is a read-only snapshot of the tag configuration.
type Catalog struct {
	entries []Entry
	valid   map[string]struct{}
}

// New builds a snapshot. Names and criteria are trimmed; the first definition
// of a duplicated name wins. Inactive tags and tags without a criterion are left out.
func New(tags []*domain.TagDefinition) *Catalog {
	c := &Catalog{valid: make(map[string]struct{})}
	for _, t := range tags {
		if t == nil || !t.Eligible() {
			continue
		}
		name := strings.TrimSpace(t.Name)
		if _, dup := c.valid[name]; dup {
			continue
		}
		c.valid[name] = struct{}{}
		c.entries = append(c.entries, Entry{Name: name, Criterion: strings.TrimSpace(t.Criterion)})
	}
	return c
}

// Entries returns active tags in configuration order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// ActiveCriteria returns tag name -> criterion for every active tag.
func (c *Catalog) ActiveCriteria() map[string]string {
	m := make(map[string]string, len(c.entries))
	for _, e := range c.entries {
		m[e.Name] = e.Criterion
	}
	return m
}

// ValidNames returns the allowlist used to validate model output.
func (c *Catalog) ValidNames() map[string]struct{} {
	m := make(map[string]struct{}, len(c.valid))
	for k := range c.valid {
		m[k] = struct{}{}
	}
	return m
}

// IsValid reports whether name (after trimming) is an active tag.
func (c *Catalog) IsValid(name string) bool {
	_, ok := c.valid[strings.TrimSpace(name)]
	return ok
}

// Names returns active tag names in configuration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

func (c *Catalog) Len() int { return len(c.entries) }

// Loader builds catalogs from storage.
type Loader struct {
	repo out.TagRepository
}

func NewLoader(repo out.TagRepository) *Loader {
	return &Loader{repo: repo}
}

// Load reads the current tag set.
func (l *Loader) Load(ctx context.Context) (*Catalog, error) {
	tags, err := l.repo.GetAllTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	return New(tags), nil
}
