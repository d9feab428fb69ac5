package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

// scriptedGateway answers classification and reply prompts separately.
type scriptedGateway struct {
	mu          sync.Mutex
	up          bool
	classify    func(prompt string) (string, bool)
	reply       func(prompt string) (string, bool)
	classifyN   int
	replyN      int
	closed      bool
	concurrent  int
	maxParallel int
}

func newGateway(classifyRaw string) *scriptedGateway {
	return &scriptedGateway{
		up:       true,
		classify: func(string) (string, bool) { return classifyRaw, true },
		reply:    func(string) (string, bool) { return "Reply: Will do.", true },
	}
}

func (g *scriptedGateway) CheckConnection(ctx context.Context) (bool, []string) {
	if !g.up {
		return false, []string{}
	}
	return true, []string{"fake"}
}

func (g *scriptedGateway) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fake"}, nil
}

func (g *scriptedGateway) SelectModel(ctx context.Context, preferred string) (string, bool) {
	return "fake", true
}

func (g *scriptedGateway) GenerateText(ctx context.Context, prompt string, opts out.GenerateOptions) (string, bool) {
	g.mu.Lock()
	g.concurrent++
	if g.concurrent > g.maxParallel {
		g.maxParallel = g.concurrent
	}
	isReply := strings.HasPrefix(prompt, "Write a reply")
	if isReply {
		g.replyN++
	} else {
		g.classifyN++
	}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.concurrent--
		g.mu.Unlock()
	}()

	if isReply {
		return g.reply(prompt)
	}
	return g.classify(prompt)
}

func (g *scriptedGateway) Close() { g.closed = true }

// fakeParser maps paths to records; unknown paths fail.
type fakeParser map[string]*domain.EmailRecord

func (p fakeParser) ParseFile(path string) (*domain.EmailRecord, error) {
	e, ok := p[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s: malformed header", domain.ErrParse, path)
	}
	return e.Clone(), nil
}

type memStore struct {
	mu      sync.Mutex
	emails  map[string]*domain.EmailRecord
	tags    []*domain.TagDefinition
	seq     int
	saveErr error
	saves   int
}

func newMemStore(tags ...*domain.TagDefinition) *memStore {
	return &memStore{emails: map[string]*domain.EmailRecord{}, tags: tags}
}

func (m *memStore) Save(ctx context.Context, e *domain.EmailRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return "", m.saveErr
	}
	if e.ID == "" && e.FileHash != "" {
		for id, existing := range m.emails {
			if existing.FileHash == e.FileHash {
				e.ID = id
			}
		}
	}
	if e.ID == "" {
		m.seq++
		e.ID = fmt.Sprintf("id-%d", m.seq)
	}
	m.emails[e.ID] = e.Clone()
	return e.ID, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return nil, domain.ErrEmailNotFound
	}
	return e.Clone(), nil
}

func (m *memStore) GetByFileHash(ctx context.Context, hash string) (*domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.emails {
		if e.FileHash == hash {
			return e.Clone(), nil
		}
	}
	return nil, domain.ErrEmailNotFound
}

func (m *memStore) AssignTags(ctx context.Context, id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	if !ok {
		return domain.ErrEmailNotFound
	}
	e.Tags = append([]string{}, tags...)
	return nil
}

func (m *memStore) GetGeneratedRepliesFor(ctx context.Context, id string) ([]*domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EmailRecord
	for _, e := range m.emails {
		if e.IsGeneratedReply && e.OriginalEmailID == id {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateSent.After(out[j].DateSent) })
	return out, nil
}

func (m *memStore) ListUnprocessed(ctx context.Context, limit int) ([]*domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EmailRecord
	for _, e := range m.emails {
		if !e.AIProcessed && !e.IsGeneratedReply {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) List(ctx context.Context, f *domain.EmailFilter) ([]*domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EmailRecord
	for _, e := range m.emails {
		if e.IsGeneratedReply && (f == nil || !f.IncludeGenerated) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, ids []string) (*domain.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &domain.DeleteResult{}
	for _, id := range ids {
		if _, ok := m.emails[id]; ok {
			delete(m.emails, id)
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) GetAllTags(ctx context.Context) ([]*domain.TagDefinition, error) {
	return m.tags, nil
}

func (m *memStore) UpsertTags(ctx context.Context, tags []*domain.TagDefinition) error {
	return errors.New("read only")
}

func (m *memStore) replies() []*domain.EmailRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.EmailRecord
	for _, e := range m.emails {
		if e.IsGeneratedReply {
			out = append(out, e)
		}
	}
	return out
}

// recorder collects progress messages.
type recorder struct {
	mu   sync.Mutex
	msgs []*domain.Progress
	on   func(p *domain.Progress)
}

func (r *recorder) PublishProgress(ctx context.Context, p *domain.Progress) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, p)
	r.mu.Unlock()
	if r.on != nil {
		r.on(p)
	}
	return nil
}
