// Package persistence provides storage adapters implementing outbound ports.
package persistence

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"smart_mailbox/core/domain"
)

// uniqueTags trims names and drops blanks and repeats, keeping first-seen order.
func uniqueTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// prepareForSave returns the copy that is written. existing is the stored
// record with the same ID or file hash, if any.
func prepareForSave(email, existing *domain.EmailRecord, now time.Time) *domain.EmailRecord {
	rec := email.Clone()
	switch {
	case existing != nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case rec.ID == "":
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Tags = uniqueTags(rec.Tags)
	return rec
}

func sortNewestFirst(records []*domain.EmailRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DateSent.After(records[j].DateSent)
	})
}

func mergeTags(tags []*domain.TagDefinition, updates []*domain.TagDefinition) []*domain.TagDefinition {
	index := make(map[string]int, len(tags))
	for i, t := range tags {
		index[t.Name] = i
	}
	for _, u := range updates {
		if u == nil || strings.TrimSpace(u.Name) == "" {
			continue
		}
		cp := *u
		cp.Name = strings.TrimSpace(cp.Name)
		if i, ok := index[cp.Name]; ok {
			tags[i] = &cp
			continue
		}
		index[cp.Name] = len(tags)
		tags = append(tags, &cp)
	}
	return tags
}
