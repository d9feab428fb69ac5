package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a step of per-item processing.
type Stage string

const (
	StageParsed         Stage = "parsed"
	StageClassified     Stage = "classified"
	StageTagsPersisted  Stage = "tags_persisted"
	StageReplyDrafted   Stage = "reply_drafted"
	StageReplyPersisted Stage = "reply_persisted"
	StageDone           Stage = "done"
)

// FailureStage names where an item failed.
type FailureStage string

const (
	FailParse    FailureStage = "parse"
	FailClassify FailureStage = "classify"
	FailPersist  FailureStage = "persist"
)

// ItemOutcome is the terminal state of one file in a batch.
type ItemOutcome struct {
	Index    int          `json:"index"`
	FilePath string       `json:"file_path"`
	EmailID  string       `json:"email_id,omitempty"`
	Stage    Stage        `json:"stage"`
	Failed   FailureStage `json:"failed,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	ReplyID  string       `json:"reply_id,omitempty"`
	// ReplyError is set when drafting or saving the reply failed; the item still counts as a success.
	ReplyError string `json:"reply_error,omitempty"`
}

// OK reports whether the item reached Done.
func (o *ItemOutcome) OK() bool {
	return o.Failed == ""
}

// Error renders the failure for user-facing reports.
func (o *ItemOutcome) Error() string {
	if o.OK() {
		return ""
	}
	return fmt.Sprintf("%s: %s: %s", baseName(o.FilePath), o.Failed, o.Reason)
}

// BatchSummary aggregates a finished (or cancelled) batch.
type BatchSummary struct {
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Skipped         int            `json:"skipped"`
	Cancelled       bool           `json:"cancelled"`
	Errors          []string       `json:"errors"`
	Items           []*ItemOutcome `json:"items"`
	ProcessedEmails []*EmailRecord `json:"processed_emails"`
	RepliesDrafted  int            `json:"replies_drafted"`
	Duration        time.Duration  `json:"duration"`
}

// NewBatchSummary returns an empty summary for total items.
func NewBatchSummary(total int) *BatchSummary {
	return &BatchSummary{
		Total:           total,
		Errors:          []string{},
		Items:           make([]*ItemOutcome, 0, total),
		ProcessedEmails: make([]*EmailRecord, 0, total),
	}
}

// Add folds one item outcome into the summary.
func (s *BatchSummary) Add(item *ItemOutcome, record *EmailRecord) {
	s.Items = append(s.Items, item)
	if record != nil {
		s.ProcessedEmails = append(s.ProcessedEmails, record)
	}
	if item.OK() {
		s.Succeeded++
		if item.ReplyID != "" {
			s.RepliesDrafted++
		}
		return
	}
	s.Failed++
	s.Errors = append(s.Errors, item.Error())
}

const headlineErrors = 3

// Headline is the one-paragraph completion message shown to the user.
func (s *BatchSummary) Headline() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d succeeded / %d failed", s.Succeeded, s.Failed)
	if s.Cancelled {
		fmt.Fprintf(&b, " (cancelled, %d not started)", s.Skipped)
	}
	for i, e := range s.Errors {
		if i == headlineErrors {
			fmt.Fprintf(&b, "\n... and %d more", len(s.Errors)-headlineErrors)
			break
		}
		b.WriteString("\n")
		b.WriteString(e)
	}
	return b.String()
}

// Progress is sent once per completed item.
type Progress struct {
	BatchID string `json:"batch_id,omitempty"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
	Done    bool   `json:"done,omitempty"`
}

// ReanalyzeResult is returned to the host after a single reanalysis.
type ReanalyzeResult struct {
	EmailID     string   `json:"email_id"`
	AIProcessed bool     `json:"ai_processed"`
	Tags        []string `json:"tags"`
	ReplyID     string   `json:"reply_id,omitempty"`
	ReplyError  string   `json:"reply_error,omitempty"`
}

// ProcessingStats summarizes stored emails.
type ProcessingStats struct {
	Total          int            `json:"total_emails"`
	Processed      int            `json:"processed_emails"`
	Unprocessed    int            `json:"unprocessed_emails"`
	ProcessingRate float64        `json:"processing_rate"`
	TagCounts      map[string]int `json:"tag_counts"`
	Replies        int            `json:"generated_replies"`
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
