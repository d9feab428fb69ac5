// Package worker runs pipeline batches in the background, one at a time.
package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/in"
	"smart_mailbox/core/port/out"
)

// ErrQueueFull is returned when too many jobs are waiting.
var ErrQueueFull = errors.New("batch queue is full")

// RunnerConfig holds runner configuration.
type RunnerConfig struct {
	QueueSize    int           // 대기 가능한 작업 수
	KeepFinished int           // 조회용으로 보관할 완료 작업 수
	JobTimeout   time.Duration // 0 = no limit; checked between items
}

func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		QueueSize:    32,
		KeepFinished: 50,
	}
}

// RunnerMetrics holds runner counters.
type RunnerMetrics struct {
	JobsProcessed int64 `json:"jobs_processed"`
	JobsFailed    int64 `json:"jobs_failed"`
	JobsCancelled int64 `json:"jobs_cancelled"`
	Queued        int32 `json:"queued"`
}

// Runner queues batch jobs onto a single-worker pool, so batches never
// overlap even when submitted from several clients.
type Runner struct {
	svc      in.PipelineService
	progress out.ProgressPublisher
	config   *RunnerConfig

	pool *pool.WorkerGroup[*Job]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	jobs     map[string]*Job
	finished []string // oldest first
	started  bool

	submitMu sync.Mutex
	metrics  RunnerMetrics
	log      zerolog.Logger
}

// jobWorker implements pool.Worker for batch jobs.
type jobWorker struct {
	runner *Runner
}

func (w *jobWorker) Do(ctx context.Context, job *Job) error {
	return w.runner.run(job)
}

func NewRunner(svc in.PipelineService, progress out.ProgressPublisher, config *RunnerConfig, log zerolog.Logger) *Runner {
	if config == nil {
		config = DefaultRunnerConfig()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		svc:      svc,
		progress: progress,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*Job),
		log:      log.With().Str("component", "batch_runner").Logger(),
	}
}

// Start launches the worker.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	// 한 번에 하나의 배치만 실행
	r.pool = pool.New[*Job](1, &jobWorker{runner: r}).
		WithBatchSize(1).
		WithWorkerChanSize(r.config.QueueSize).
		WithContinueOnError()

	if err := r.pool.Go(r.ctx); err != nil {
		return err
	}
	r.started = true
	r.log.Info().Int("queue_size", r.config.QueueSize).Msg("batch runner started")
	return nil
}

// Stop cancels queued and running jobs and waits for the worker to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	for _, j := range r.jobs {
		if !j.state.finished() {
			j.cancel()
		}
	}
	r.mu.Unlock()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := r.pool.Close(closeCtx); err != nil {
		r.log.Warn().Err(err).Msg("error closing batch pool")
	}
	r.cancel()

	r.log.Info().
		Int64("processed", atomic.LoadInt64(&r.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&r.metrics.JobsFailed)).
		Msg("batch runner stopped")
}

// SubmitFiles queues a batch over paths.
func (r *Runner) SubmitFiles(paths []string) (*JobView, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files given")
	}
	return r.submit(newJob(JobProcessFiles, paths, 0))
}

// SubmitSweep queues a reanalysis of unprocessed emails.
func (r *Runner) SubmitSweep(limit int) (*JobView, error) {
	return r.submit(newJob(JobSweep, nil, limit))
}

func (r *Runner) submit(job *Job) (*JobView, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil, errors.New("batch runner not started")
	}
	if int(atomic.LoadInt32(&r.metrics.Queued)) >= r.config.QueueSize {
		r.mu.Unlock()
		return nil, ErrQueueFull
	}
	r.jobs[job.ID] = job
	view := job.view()
	r.mu.Unlock()

	atomic.AddInt32(&r.metrics.Queued, 1)
	r.submitMu.Lock()
	r.pool.Submit(job)
	r.submitMu.Unlock()

	r.log.Info().Str("job_id", job.ID).Str("job_type", job.Type).Int("files", len(job.Paths)).Msg("batch queued")
	return view, nil
}

// Get returns a job by ID.
func (r *Runner) Get(id string) (*JobView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return j.view(), nil
}

// List returns all known jobs, newest first.
func (r *Runner) List() []*JobView {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]*JobView, 0, len(r.jobs))
	for _, j := range r.jobs {
		views = append(views, j.view())
	}
	sort.Slice(views, func(i, k int) bool { return views[i].CreatedAt.After(views[k].CreatedAt) })
	return views
}

// Cancel stops a job. A queued job never starts; a running job stops after
// the item in flight.
func (r *Runner) Cancel(id string) (*JobView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	if !j.state.finished() {
		j.cancel()
		r.log.Info().Str("job_id", id).Str("state", string(j.state)).Msg("batch cancel requested")
	}
	return j.view(), nil
}

// Metrics returns a copy of the counters.
func (r *Runner) Metrics() RunnerMetrics {
	return RunnerMetrics{
		JobsProcessed: atomic.LoadInt64(&r.metrics.JobsProcessed),
		JobsFailed:    atomic.LoadInt64(&r.metrics.JobsFailed),
		JobsCancelled: atomic.LoadInt64(&r.metrics.JobsCancelled),
		Queued:        atomic.LoadInt32(&r.metrics.Queued),
	}
}

func (r *Runner) run(job *Job) error {
	atomic.AddInt32(&r.metrics.Queued, -1)

	r.mu.Lock()
	if job.ctx.Err() != nil {
		r.finishLocked(job, StateCancelled, nil, "")
		r.mu.Unlock()
		atomic.AddInt64(&r.metrics.JobsCancelled, 1)
		return nil
	}
	job.state = StateRunning
	job.startedAt = time.Now().UTC()
	r.mu.Unlock()

	ctx := job.ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	progress := out.ProgressFunc(func(ctx context.Context, p *domain.Progress) error {
		p.BatchID = job.ID
		if r.progress == nil {
			return nil
		}
		return r.progress.PublishProgress(ctx, p)
	})

	start := time.Now()
	var (
		summary *domain.BatchSummary
		err     error
	)
	switch job.Type {
	case JobSweep:
		summary, err = r.svc.ReanalyzeUnprocessed(ctx, job.Limit, progress)
	default:
		summary, err = r.svc.ProcessFiles(ctx, job.Paths, progress)
	}

	if err != nil {
		// release clients waiting for Done
		_ = progress.PublishProgress(context.Background(), &domain.Progress{Status: err.Error(), Done: true})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.finishLocked(job, StateFailed, nil, err.Error())
		atomic.AddInt64(&r.metrics.JobsFailed, 1)
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("batch failed")
	case summary.Cancelled:
		r.finishLocked(job, StateCancelled, summary, "")
		atomic.AddInt64(&r.metrics.JobsCancelled, 1)
	default:
		r.finishLocked(job, StateDone, summary, "")
		atomic.AddInt64(&r.metrics.JobsProcessed, 1)
	}
	r.log.Info().Str("job_id", job.ID).Str("state", string(job.state)).Dur("elapsed", time.Since(start)).Msg("batch finished")
	return nil
}

func (r *Runner) finishLocked(job *Job, state JobState, summary *domain.BatchSummary, errMsg string) {
	job.state = state
	job.summary = summary
	job.err = errMsg
	job.finishedAt = time.Now().UTC()
	job.cancel()

	r.finished = append(r.finished, job.ID)
	keep := r.config.KeepFinished
	if keep <= 0 {
		keep = DefaultRunnerConfig().KeepFinished
	}
	for len(r.finished) > keep {
		delete(r.jobs, r.finished[0])
		r.finished = r.finished[1:]
	}
}
