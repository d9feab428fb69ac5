package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"smart_mailbox/core/domain"
)

// Replies returns the generated replies for an email, newest first.
func (s *Service) Replies(ctx context.Context, emailID string) ([]*domain.EmailRecord, error) {
	if _, err := s.emails.GetByID(ctx, emailID); err != nil {
		return nil, err
	}
	return s.emails.GetGeneratedRepliesFor(ctx, emailID)
}

func (s *Service) ListEmails(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error) {
	return s.emails.List(ctx, filter)
}

func (s *Service) DeleteEmails(ctx context.Context, ids []string) (*domain.DeleteResult, error) {
	return s.emails.Delete(ctx, ids)
}

// Stats counts stored emails by processing state and tag.
func (s *Service) Stats(ctx context.Context) (*domain.ProcessingStats, error) {
	all, err := s.emails.List(ctx, &domain.EmailFilter{IncludeGenerated: true})
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}

	stats := &domain.ProcessingStats{TagCounts: map[string]int{}}
	for _, e := range all {
		if e.IsGeneratedReply {
			stats.Replies++
			continue
		}
		stats.Total++
		if e.AIProcessed {
			stats.Processed++
		} else {
			stats.Unprocessed++
		}
		for _, t := range e.Tags {
			stats.TagCounts[t]++
		}
	}
	if stats.Total > 0 {
		stats.ProcessingRate = float64(stats.Processed) / float64(stats.Total) * 100
	}
	return stats, nil
}

func statusLine(item *domain.ItemOutcome) string {
	name := filepath.Base(item.FilePath)
	if !item.OK() {
		return fmt.Sprintf("Failed %s: %s", name, item.Reason)
	}
	msg := "Processed " + name
	if len(item.Tags) > 0 {
		msg += " [" + strings.Join(item.Tags, ", ") + "]"
	}
	if item.ReplyID != "" {
		msg += ", reply drafted"
	}
	return msg
}

func sourceName(e *domain.EmailRecord) string {
	if e.FilePath != "" {
		return e.FilePath
	}
	if e.Subject != "" {
		return e.Subject
	}
	return e.ID
}
