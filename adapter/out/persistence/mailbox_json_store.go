package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

const (
	emailsFile = "emails.json"
	tagsFile   = "tags.json"
)

// JSONStore keeps emails and tags as two JSON arrays in a data directory.
// Every call reads and rewrites the whole file, so it suits a single desktop
// user, not a server.
type JSONStore struct {
	mu     sync.Mutex
	emails string
	tags   string
	now    func() time.Time
	log    zerolog.Logger
}

// NewJSONStore creates dir and empty files as needed.
func NewJSONStore(dir string, log zerolog.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &JSONStore{
		emails: filepath.Join(dir, emailsFile),
		tags:   filepath.Join(dir, tagsFile),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.With().Str("component", "json_store").Logger(),
	}
	for _, path := range []string{s.emails, s.tags} {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := writeJSON(path, []any{}); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// readJSON decodes path into v. A corrupt file is copied to <path>.backup
// and treated as empty.
func (s *JSONStore) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		backup := path + ".backup"
		s.log.Error().Err(err).Str("file", path).Str("backup", backup).Msg("corrupt store file, starting empty")
		if werr := os.WriteFile(backup, data, 0o644); werr != nil {
			return fmt.Errorf("backup %s: %w", filepath.Base(path), werr)
		}
		return nil
	}
	return nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func (s *JSONStore) loadEmails() ([]*domain.EmailRecord, error) {
	var emails []*domain.EmailRecord
	if err := s.readJSON(s.emails, &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

func (s *JSONStore) Save(ctx context.Context, email *domain.EmailRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails, err := s.loadEmails()
	if err != nil {
		return "", err
	}

	at := -1
	for i, e := range emails {
		if (email.ID != "" && e.ID == email.ID) || (email.FileHash != "" && e.FileHash == email.FileHash) {
			at = i
			break
		}
	}

	var existing *domain.EmailRecord
	if at >= 0 {
		existing = emails[at]
	}
	rec := prepareForSave(email, existing, s.now())
	if at >= 0 {
		emails[at] = rec
	} else {
		emails = append(emails, rec)
	}

	if err := writeJSON(s.emails, emails); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *JSONStore) GetByID(ctx context.Context, id string) (*domain.EmailRecord, error) {
	return s.find(func(e *domain.EmailRecord) bool { return e.ID == id })
}

func (s *JSONStore) GetByFileHash(ctx context.Context, hash string) (*domain.EmailRecord, error) {
	if hash == "" {
		return nil, domain.ErrEmailNotFound
	}
	return s.find(func(e *domain.EmailRecord) bool { return e.FileHash == hash })
}

func (s *JSONStore) find(match func(*domain.EmailRecord) bool) (*domain.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails, err := s.loadEmails()
	if err != nil {
		return nil, err
	}
	for _, e := range emails {
		if match(e) {
			return e, nil
		}
	}
	return nil, domain.ErrEmailNotFound
}

func (s *JSONStore) AssignTags(ctx context.Context, id string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails, err := s.loadEmails()
	if err != nil {
		return err
	}
	for _, e := range emails {
		if e.ID == id {
			e.Tags = uniqueTags(tags)
			e.UpdatedAt = s.now()
			return writeJSON(s.emails, emails)
		}
	}
	return domain.ErrEmailNotFound
}

func (s *JSONStore) GetGeneratedRepliesFor(ctx context.Context, id string) ([]*domain.EmailRecord, error) {
	return s.list(&domain.EmailFilter{IncludeGenerated: true}, withOriginal(id))
}

func (s *JSONStore) ListUnprocessed(ctx context.Context, limit int) ([]*domain.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails, err := s.loadEmails()
	if err != nil {
		return nil, err
	}
	pending := make([]*domain.EmailRecord, 0)
	for _, e := range emails {
		if e.AIProcessed || e.IsGeneratedReply {
			continue
		}
		pending = append(pending, e)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

type listOption func(*domain.EmailRecord) bool

func withOriginal(id string) listOption {
	return func(e *domain.EmailRecord) bool {
		return e.IsGeneratedReply && e.OriginalEmailID == id
	}
}

// List returns matching records newest first.
func (s *JSONStore) List(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error) {
	return s.list(filter)
}

func (s *JSONStore) list(filter *domain.EmailFilter, opts ...listOption) ([]*domain.EmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails, err := s.loadEmails()
	if err != nil {
		return nil, err
	}
	matched := make([]*domain.EmailRecord, 0, len(emails))
next:
	for _, e := range emails {
		if !filter.Matches(e) {
			continue
		}
		for _, opt := range opts {
			if !opt(e) {
				continue next
			}
		}
		matched = append(matched, e)
	}
	sortNewestFirst(matched)
	return filter.Page(matched), nil
}

func (s *JSONStore) Delete(ctx context.Context, ids []string) (*domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	emails, err := s.loadEmails()
	if err != nil {
		return nil, err
	}
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	kept := emails[:0]
	found := make(map[string]struct{}, len(ids))
	for _, e := range emails {
		if _, ok := remove[e.ID]; ok {
			found[e.ID] = struct{}{}
			continue
		}
		kept = append(kept, e)
	}

	res := &domain.DeleteResult{}
	for _, id := range ids {
		if _, ok := found[id]; ok {
			res.Succeeded++
		} else {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, id)
		}
	}
	if res.Succeeded == 0 {
		return res, nil
	}
	if err := writeJSON(s.emails, kept); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *JSONStore) GetAllTags(ctx context.Context) ([]*domain.TagDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tags []*domain.TagDefinition
	if err := s.readJSON(s.tags, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *JSONStore) UpsertTags(ctx context.Context, updates []*domain.TagDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tags []*domain.TagDefinition
	if err := s.readJSON(s.tags, &tags); err != nil {
		return err
	}
	return writeJSON(s.tags, mergeTags(tags, updates))
}

func (s *JSONStore) Close() error { return nil }

var _ out.Store = (*JSONStore)(nil)
