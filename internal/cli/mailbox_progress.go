package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

// progressPrinter writes "[i/n] status" lines. The done message is left to
// the summary printer.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) PublishProgress(ctx context.Context, msg *domain.Progress) error {
	if msg.Done {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "[%d/%d] %s\n", msg.Index, msg.Total, msg.Status)
	return err
}

var _ out.ProgressPublisher = (*progressPrinter)(nil)
