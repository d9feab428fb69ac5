package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReplySubjectPrefix is prepended to generated reply subjects.
const ReplySubjectPrefix = "Re:"

// EmailRecord is a parsed .eml file, and also the shape of a generated reply.
type EmailRecord struct {
	ID            string `json:"id" db:"id" bson:"_id"`
	Subject       string `json:"subject" db:"subject" bson:"subject"`
	Sender        string `json:"sender" db:"sender" bson:"sender"`
	SenderName    string `json:"sender_name,omitempty" db:"sender_name" bson:"sender_name,omitempty"`
	Recipient     string `json:"recipient" db:"recipient" bson:"recipient"`
	RecipientName string `json:"recipient_name,omitempty" db:"recipient_name" bson:"recipient_name,omitempty"`
	BodyText      string `json:"body_text,omitempty" db:"body_text" bson:"body_text,omitempty"`
	BodyHTML      string `json:"body_html,omitempty" db:"body_html" bson:"body_html,omitempty"`

	DateSent time.Time `json:"date_sent" db:"date_sent" bson:"date_sent"`

	FilePath        string `json:"file_path,omitempty" db:"file_path" bson:"file_path,omitempty"`
	FileHash        string `json:"file_hash,omitempty" db:"file_hash" bson:"file_hash,omitempty"`
	FileSize        int64  `json:"file_size,omitempty" db:"file_size" bson:"file_size,omitempty"`
	HasAttachments  bool   `json:"has_attachments" db:"has_attachments" bson:"has_attachments"`
	AttachmentCount int    `json:"attachment_count" db:"attachment_count" bson:"attachment_count"`

	// Tags is an ordered set of tag names.
	Tags             []string   `json:"tags" db:"-" bson:"tags"`
	AIProcessed      bool       `json:"ai_processed" db:"ai_processed" bson:"ai_processed"`
	AIProcessingDate *time.Time `json:"ai_processing_date,omitempty" db:"ai_processing_date" bson:"ai_processing_date,omitempty"`

	IsGeneratedReply bool   `json:"is_generated_reply" db:"is_generated_reply" bson:"is_generated_reply"`
	OriginalEmailID  string `json:"original_email_id,omitempty" db:"original_email_id" bson:"original_email_id,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy.
func (e *EmailRecord) Clone() *EmailRecord {
	if e == nil {
		return nil
	}
	c := *e
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.AIProcessingDate != nil {
		t := *e.AIProcessingDate
		c.AIProcessingDate = &t
	}
	return &c
}

// DisplaySender formats the sender as "Name <addr>" when a name is known.
func (e *EmailRecord) DisplaySender() string {
	return displayAddress(e.SenderName, e.Sender)
}

// DisplayRecipient formats the recipient like DisplaySender.
func (e *EmailRecord) DisplayRecipient() string {
	return displayAddress(e.RecipientName, e.Recipient)
}

func displayAddress(name, addr string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == addr {
		return addr
	}
	if addr == "" {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

// HasTag reports whether name is among the record's tags.
func (e *EmailRecord) HasTag(name string) bool {
	for _, t := range e.Tags {
		if t == name {
			return true
		}
	}
	return false
}

// ApplyClassification records a definitive classification result.
// The previous tag set is replaced, not merged.
func (e *EmailRecord) ApplyClassification(result *ClassificationResult, at time.Time) {
	e.Tags = append([]string{}, result.MatchedTags...)
	e.AIProcessed = true
	e.AIProcessingDate = &at
}

// NewGeneratedReply builds the synthetic record that stores a drafted reply.
func NewGeneratedReply(original *EmailRecord, body string, now time.Time) *EmailRecord {
	subject := strings.TrimSpace(original.Subject)
	if !strings.HasPrefix(strings.ToLower(subject), strings.ToLower(ReplySubjectPrefix)) {
		subject = strings.TrimSpace(ReplySubjectPrefix + " " + subject)
	}
	return &EmailRecord{
		Subject:          subject,
		Sender:           original.Recipient,
		SenderName:       original.RecipientName,
		Recipient:        original.Sender,
		RecipientName:    original.SenderName,
		BodyText:         body,
		DateSent:         now,
		Tags:             []string{},
		AIProcessed:      true,
		AIProcessingDate: &now,
		IsGeneratedReply: true,
		OriginalEmailID:  original.ID,
	}
}

// EmailFilter narrows List queries.
type EmailFilter struct {
	// Query is a case-insensitive substring over subject, parties, body and tags.
	Query            string
	Tag              string
	AIProcessed      *bool
	IncludeGenerated bool
	Limit            int
	Offset           int
}

// Matches applies every condition except paging.
func (f *EmailFilter) Matches(e *EmailRecord) bool {
	if f == nil {
		return !e.IsGeneratedReply
	}
	if e.IsGeneratedReply && !f.IncludeGenerated {
		return false
	}
	if f.Tag != "" && !e.HasTag(f.Tag) {
		return false
	}
	if f.AIProcessed != nil && e.AIProcessed != *f.AIProcessed {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		fields := []string{e.Subject, e.Sender, e.SenderName, e.Recipient, e.RecipientName, e.BodyText}
		fields = append(fields, e.Tags...)
		if !strings.Contains(strings.ToLower(strings.Join(fields, " ")), q) {
			return false
		}
	}
	return true
}

// Page slices records by Offset and Limit. Limit 0 means no limit.
func (f *EmailFilter) Page(records []*EmailRecord) []*EmailRecord {
	if f == nil {
		return records
	}
	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*EmailRecord{}
		}
		records = records[f.Offset:]
	}
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[:f.Limit]
	}
	return records
}

// DeleteResult reports a bulk delete.
type DeleteResult struct {
	Succeeded int      `json:"success_count"`
	Failed    int      `json:"failed_count"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}
