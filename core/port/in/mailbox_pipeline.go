package in

import (
	"context"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

// PipelineService is what the host (CLI, HTTP API, desktop shell) drives.
type PipelineService interface {
	ProcessFiles(ctx context.Context, paths []string, progress out.ProgressPublisher) (*domain.BatchSummary, error)
	Reanalyze(ctx context.Context, emailID string) (*domain.ReanalyzeResult, error)
	ReanalyzeUnprocessed(ctx context.Context, limit int, progress out.ProgressPublisher) (*domain.BatchSummary, error)
	CheckConnection(ctx context.Context) (bool, []string)

	Replies(ctx context.Context, emailID string) ([]*domain.EmailRecord, error)
	ListEmails(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error)
	DeleteEmails(ctx context.Context, ids []string) (*domain.DeleteResult, error)
	Stats(ctx context.Context) (*domain.ProcessingStats, error)
}
