package out

import (
	"context"

	"smart_mailbox/core/domain"
)

// EmailParser turns an .eml file into a record. Errors wrap domain.ErrParse.
type EmailParser interface {
	ParseFile(path string) (*domain.EmailRecord, error)
}

// ProgressPublisher receives one message per completed batch item.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, p *domain.Progress) error
}

// ProgressFunc adapts a function to ProgressPublisher.
type ProgressFunc func(ctx context.Context, p *domain.Progress) error

func (f ProgressFunc) PublishProgress(ctx context.Context, p *domain.Progress) error {
	return f(ctx, p)
}

// MultiProgress fans out to several publishers and returns the first error.
type MultiProgress []ProgressPublisher

func (m MultiProgress) PublishProgress(ctx context.Context, p *domain.Progress) error {
	var first error
	for _, pub := range m {
		if pub == nil {
			continue
		}
		if err := pub.PublishProgress(ctx, p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
