// Package pipeline drives emails through parse, classify, persist and reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/in"
	"smart_mailbox/core/port/out"
	"smart_mailbox/core/service/classification"
	"smart_mailbox/core/service/reply"
	"smart_mailbox/core/service/tagcatalog"
)

// Config tunes the orchestrator.
type Config struct {
	// NeedsReplyTag is the tag whose presence triggers reply drafting.
	NeedsReplyTag string
	// Preflight checks the model server before a batch starts.
	Preflight      bool
	Classification classification.Config
	Reply          reply.Config
}

// engines are rebuilt together whenever the gateway changes.
type engines struct {
	gateway    out.ModelGateway
	classifier *classification.Engine
	drafter    *reply.Drafter
}

// Service implements in.PipelineService.
type Service struct {
	cfg    Config
	emails out.EmailRepository
	tags   *tagcatalog.Loader
	parser out.EmailParser

	mu  sync.RWMutex // guards eng
	eng *engines

	// flight serializes everything that talks to the model.
	flight sync.Mutex

	now func() time.Time
	log zerolog.Logger
}

// NewService wires the orchestrator.
func NewService(
	cfg Config,
	gateway out.ModelGateway,
	emails out.EmailRepository,
	tags out.TagRepository,
	parser out.EmailParser,
	log zerolog.Logger,
) *Service {
	if cfg.NeedsReplyTag == "" {
		cfg.NeedsReplyTag = domain.TagNeedsReply
	}
	s := &Service{
		cfg:    cfg,
		emails: emails,
		tags:   tagcatalog.NewLoader(tags),
		parser: parser,
		now:    time.Now,
		log:    log.With().Str("component", "pipeline").Logger(),
	}
	s.eng = s.buildEngines(gateway)
	return s
}

func (s *Service) buildEngines(gateway out.ModelGateway) *engines {
	return &engines{
		gateway:    gateway,
		classifier: classification.NewEngine(gateway, s.cfg.Classification, s.log),
		drafter:    reply.NewDrafter(gateway, s.cfg.Reply, s.log),
	}
}

func (s *Service) engines() *engines {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng
}

// SwapGateway replaces the gateway after a settings change. An item already
// in flight finishes on the old gateway; the next item uses the new one.
func (s *Service) SwapGateway(gateway out.ModelGateway) {
	s.mu.Lock()
	old := s.eng
	s.eng = s.buildEngines(gateway)
	s.mu.Unlock()

	if old != nil && old.gateway != nil && old.gateway != gateway {
		old.gateway.Close()
	}
	s.log.Info().Msg("model gateway replaced")
}

// Close releases the current gateway.
func (s *Service) Close() {
	if eng := s.engines(); eng != nil && eng.gateway != nil {
		eng.gateway.Close()
	}
}

// CheckConnection reports whether the model server is reachable.
func (s *Service) CheckConnection(ctx context.Context) (bool, []string) {
	return s.engines().gateway.CheckConnection(ctx)
}

// ProcessFiles runs one batch. Items are processed one at a time; ctx is
// checked between items, and an item that has started always completes.
func (s *Service) ProcessFiles(ctx context.Context, paths []string, progress out.ProgressPublisher) (*domain.BatchSummary, error) {
	s.flight.Lock()
	defer s.flight.Unlock()

	if err := s.preflight(ctx); err != nil {
		return nil, err
	}
	catalog, err := s.tags.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("files", len(paths)).Int("tags", catalog.Len()).Msg("batch started")
	summary := s.run(ctx, len(paths), progress, func(ctx context.Context, i int) (*domain.ItemOutcome, *domain.EmailRecord) {
		return s.processFile(ctx, catalog, i, paths[i])
	})
	return summary, nil
}

// ReanalyzeUnprocessed retries every stored email that has no definitive classification.
func (s *Service) ReanalyzeUnprocessed(ctx context.Context, limit int, progress out.ProgressPublisher) (*domain.BatchSummary, error) {
	s.flight.Lock()
	defer s.flight.Unlock()

	if err := s.preflight(ctx); err != nil {
		return nil, err
	}
	pending, err := s.emails.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	catalog, err := s.tags.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info().Int("emails", len(pending)).Msg("sweep started")
	summary := s.run(ctx, len(pending), progress, func(ctx context.Context, i int) (*domain.ItemOutcome, *domain.EmailRecord) {
		email := pending[i].Clone()
		item := &domain.ItemOutcome{Index: i, FilePath: sourceName(email), EmailID: email.ID, Stage: domain.StageParsed}
		eng := s.engines()
		result, ok := eng.classifier.Classify(ctx, email, catalog)
		if !ok {
			item.Failed, item.Reason = domain.FailClassify, domain.ErrModelUnavailable.Error()
			return item, pending[i]
		}
		item.Stage = domain.StageClassified
		return s.persistClassified(ctx, eng, email, result, item)
	})
	return summary, nil
}

// Reanalyze classifies a stored email again. On failure the stored record is untouched.
func (s *Service) Reanalyze(ctx context.Context, emailID string) (*domain.ReanalyzeResult, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}
	return s.ReanalyzeRecord(ctx, email)
}

// ReanalyzeRecord is Reanalyze for a record the caller already holds. It
// returns ErrBatchRunning instead of waiting behind a batch.
func (s *Service) ReanalyzeRecord(ctx context.Context, email *domain.EmailRecord) (*domain.ReanalyzeResult, error) {
	if !s.flight.TryLock() {
		return nil, domain.ErrBatchRunning
	}
	defer s.flight.Unlock()

	catalog, err := s.tags.Load(ctx)
	if err != nil {
		return nil, err
	}

	work := email.Clone()
	eng := s.engines()
	result, ok := eng.classifier.Classify(context.WithoutCancel(ctx), work, catalog)
	if !ok {
		return nil, domain.ErrModelUnavailable
	}

	item := &domain.ItemOutcome{FilePath: sourceName(work), EmailID: work.ID, Stage: domain.StageClassified}
	item, saved := s.persistClassified(context.WithoutCancel(ctx), eng, work, result, item)
	if !item.OK() {
		return nil, fmt.Errorf("%s: %s", item.Failed, item.Reason)
	}
	return &domain.ReanalyzeResult{
		EmailID:     saved.ID,
		AIProcessed: saved.AIProcessed,
		Tags:        saved.Tags,
		ReplyID:     item.ReplyID,
		ReplyError:  item.ReplyError,
	}, nil
}

func (s *Service) preflight(ctx context.Context) error {
	if !s.cfg.Preflight {
		return nil
	}
	if up, _ := s.engines().gateway.CheckConnection(ctx); !up {
		return domain.ErrModelUnavailable
	}
	return nil
}

// run is the sequential batch loop shared by file batches and sweeps.
func (s *Service) run(
	ctx context.Context,
	total int,
	progress out.ProgressPublisher,
	step func(ctx context.Context, i int) (*domain.ItemOutcome, *domain.EmailRecord),
) *domain.BatchSummary {
	start := s.now()
	summary := domain.NewBatchSummary(total)
	work := context.WithoutCancel(ctx)

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Skipped = total - i
			s.log.Info().Int("done", i).Int("skipped", summary.Skipped).Msg("batch cancelled")
			break
		}
		item, record := step(work, i)
		summary.Add(item, record)
		s.publish(work, progress, &domain.Progress{Index: i + 1, Total: total, Status: statusLine(item)})
	}

	summary.Duration = s.now().Sub(start)
	s.publish(work, progress, &domain.Progress{Index: len(summary.Items), Total: total, Status: summary.Headline(), Done: true})
	s.log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("replies", summary.RepliesDrafted).
		Bool("cancelled", summary.Cancelled).
		Dur("elapsed", summary.Duration).
		Msg("batch finished")
	return summary
}

func (s *Service) processFile(ctx context.Context, catalog *tagcatalog.Catalog, index int, path string) (*domain.ItemOutcome, *domain.EmailRecord) {
	item := &domain.ItemOutcome{Index: index, FilePath: path}

	email, err := s.parser.ParseFile(path)
	if err != nil {
		item.Failed, item.Reason = domain.FailParse, err.Error()
		s.log.Warn().Err(err).Str("file", path).Msg("parse failed")
		return item, nil
	}
	item.Stage = domain.StageParsed

	eng := s.engines()
	result, ok := eng.classifier.Classify(ctx, email, catalog)
	if !ok {
		item.Failed, item.Reason = domain.FailClassify, domain.ErrModelUnavailable.Error()
		s.keepUnprocessed(ctx, email, item)
		return item, email
	}
	item.Stage = domain.StageClassified
	return s.persistClassified(ctx, eng, email, result, item)
}

// keepUnprocessed stores a parsed email whose classification failed, so a
// later sweep can pick it up. An already stored copy is left as it is.
func (s *Service) keepUnprocessed(ctx context.Context, email *domain.EmailRecord, item *domain.ItemOutcome) {
	if email.FileHash != "" {
		existing, err := s.emails.GetByFileHash(ctx, email.FileHash)
		if err == nil && existing != nil {
			item.EmailID = existing.ID
			return
		}
		if err != nil && !errors.Is(err, domain.ErrEmailNotFound) {
			s.log.Warn().Err(err).Str("file", item.FilePath).Msg("hash lookup failed")
			return
		}
	}
	email.AIProcessed = false
	id, err := s.emails.Save(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Str("file", item.FilePath).Msg("failed to store unprocessed email")
		return
	}
	email.ID = id
	item.EmailID = id
}

// persistClassified saves the record and its tags, then drafts a reply when
// the needs-reply tag matched. The returned record is surfaced to the caller
// even when saving failed.
func (s *Service) persistClassified(
	ctx context.Context,
	eng *engines,
	email *domain.EmailRecord,
	result *domain.ClassificationResult,
	item *domain.ItemOutcome,
) (*domain.ItemOutcome, *domain.EmailRecord) {
	email.ApplyClassification(result, s.now())
	item.Tags = email.Tags

	id, err := s.emails.Save(ctx, email)
	if err != nil {
		item.Failed, item.Reason = domain.FailPersist, err.Error()
		s.log.Error().Err(err).Str("file", item.FilePath).Msg("failed to save email")
		return item, email
	}
	email.ID = id
	item.EmailID = id

	if err := s.emails.AssignTags(ctx, id, email.Tags); err != nil {
		item.Failed, item.Reason = domain.FailPersist, err.Error()
		s.log.Error().Err(err).Str("email_id", id).Msg("failed to assign tags")
		return item, email
	}
	item.Stage = domain.StageTagsPersisted

	if result.Has(s.cfg.NeedsReplyTag) {
		s.draftReply(ctx, eng, email, item)
	}
	item.Stage = domain.StageDone
	return item, email
}

func (s *Service) draftReply(ctx context.Context, eng *engines, email *domain.EmailRecord, item *domain.ItemOutcome) {
	text, ok := eng.drafter.DraftReply(ctx, email)
	if !ok {
		item.ReplyError = "reply drafting failed"
		return
	}
	item.Stage = domain.StageReplyDrafted

	generated := domain.NewGeneratedReply(email, text, s.now())
	id, err := s.emails.Save(ctx, generated)
	if err != nil {
		item.ReplyError = "failed to save reply: " + err.Error()
		s.log.Error().Err(err).Str("email_id", email.ID).Msg("failed to save generated reply")
		return
	}
	item.ReplyID = id
	item.Stage = domain.StageReplyPersisted
}

func (s *Service) publish(ctx context.Context, progress out.ProgressPublisher, p *domain.Progress) {
	if progress == nil {
		return
	}
	if err := progress.PublishProgress(ctx, p); err != nil {
		s.log.Warn().Err(err).Int("index", p.Index).Msg("progress publish failed")
	}
}

var _ in.PipelineService = (*Service)(nil)
