package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"smart_mailbox/core/domain"
)

// JobType is what a batch job does.
type JobType = string

const (
	JobProcessFiles JobType = "process_files"
	JobSweep        JobType = "sweep"
)

// JobState is the lifecycle of a batch job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateDone      JobState = "done"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

func (s JobState) finished() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Job is one queued batch. Mutable fields are guarded by the Runner.
type Job struct {
	ID        string
	Type      JobType
	Paths     []string
	Limit     int
	CreatedAt time.Time

	state      JobState
	summary    *domain.BatchSummary
	err        string
	startedAt  time.Time
	finishedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func newJob(jobType JobType, paths []string, limit int) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Paths:     append([]string(nil), paths...),
		Limit:     limit,
		CreatedAt: time.Now().UTC(),
		state:     StateQueued,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// JobView is a point-in-time copy of a job for callers.
type JobView struct {
	ID         string               `json:"id"`
	Type       JobType              `json:"type"`
	State      JobState             `json:"state"`
	Files      int                  `json:"files,omitempty"`
	Error      string               `json:"error,omitempty"`
	Headline   string               `json:"headline,omitempty"`
	Summary    *domain.BatchSummary `json:"summary,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

func (j *Job) view() *JobView {
	v := &JobView{
		ID:        j.ID,
		Type:      j.Type,
		State:     j.state,
		Files:     len(j.Paths),
		Error:     j.err,
		Summary:   j.summary,
		CreatedAt: j.CreatedAt,
	}
	if j.summary != nil {
		v.Headline = j.summary.Headline()
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		v.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		v.FinishedAt = &t
	}
	return v
}
