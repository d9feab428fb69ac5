package out

import (
	"context"

	"smart_mailbox/core/domain"
)

// EmailRepository stores email records and generated replies.
type EmailRepository interface {
	// Save inserts or updates a record and returns its ID. A record whose
	// FileHash is already stored updates that row and keeps its ID.
	Save(ctx context.Context, email *domain.EmailRecord) (string, error)
	GetByID(ctx context.Context, id string) (*domain.EmailRecord, error)
	GetByFileHash(ctx context.Context, hash string) (*domain.EmailRecord, error)
	// AssignTags replaces the tag set of an email.
	AssignTags(ctx context.Context, id string, tags []string) error
	// GetGeneratedRepliesFor returns replies for id, newest first.
	GetGeneratedRepliesFor(ctx context.Context, id string) ([]*domain.EmailRecord, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.EmailRecord, error)
	List(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error)
	Delete(ctx context.Context, ids []string) (*domain.DeleteResult, error)
	Close() error
}

// TagRepository stores the tag catalog.
type TagRepository interface {
	GetAllTags(ctx context.Context) ([]*domain.TagDefinition, error)
	UpsertTags(ctx context.Context, tags []*domain.TagDefinition) error
}

// Store is a backend holding both emails and tags.
type Store interface {
	EmailRepository
	TagRepository
}
