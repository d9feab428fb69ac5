package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

const (
	collectionEmails = "emails"
	collectionTags   = "tags"
)

// Store implements out.Store on two collections.
type Store struct {
	client *mongo.Client
	emails *mongo.Collection
	tags   *mongo.Collection
	now    func() time.Time
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client: client,
		emails: db.Collection(collectionEmails),
		tags:   db.Collection(collectionTags),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.emails.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_hash", Value: 1}}},
		{Keys: bson.D{{Key: "original_email_id", Value: 1}, {Key: "date_sent", Value: -1}}},
		{Keys: bson.D{{Key: "ai_processed", Value: 1}, {Key: "is_generated_reply", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	})
	return err
}

// tagDocument adds catalog order to a tag definition.
type tagDocument struct {
	domain.TagDefinition `bson:",inline"`
	Position             int `bson:"position"`
}

func (s *Store) Save(ctx context.Context, email *domain.EmailRecord) (string, error) {
	existing, err := s.findExisting(ctx, email)
	if err != nil {
		return "", err
	}

	rec := email.Clone()
	now := s.now()
	switch {
	case existing != nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	case rec.ID == "":
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	_, err = s.emails.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("failed to save email: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) findExisting(ctx context.Context, email *domain.EmailRecord) (*domain.EmailRecord, error) {
	var filter bson.M
	switch {
	case email.ID != "":
		filter = bson.M{"_id": email.ID}
	case email.FileHash != "":
		filter = bson.M{"file_hash": email.FileHash}
	default:
		return nil, nil
	}
	found, err := s.findOne(ctx, filter)
	if errors.Is(err, domain.ErrEmailNotFound) {
		return nil, nil
	}
	return found, err
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*domain.EmailRecord, error) {
	var rec domain.EmailRecord
	err := s.emails.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	return normalize(&rec), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.EmailRecord, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) GetByFileHash(ctx context.Context, hash string) (*domain.EmailRecord, error) {
	if hash == "" {
		return nil, domain.ErrEmailNotFound
	}
	return s.findOne(ctx, bson.M{"file_hash": hash})
}

func (s *Store) AssignTags(ctx context.Context, id string, tags []string) error {
	res, err := s.emails.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"tags": cleanTags(tags), "updated_at": s.now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrEmailNotFound
	}
	return nil
}

func (s *Store) GetGeneratedRepliesFor(ctx context.Context, id string) ([]*domain.EmailRecord, error) {
	return s.find(ctx,
		bson.M{"is_generated_reply": true, "original_email_id": id},
		options.Find().SetSort(bson.D{{Key: "date_sent", Value: -1}}))
}

func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]*domain.EmailRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"ai_processed": false, "is_generated_reply": false}, opts)
}

// List returns matching records newest first.
func (s *Store) List(ctx context.Context, filter *domain.EmailFilter) ([]*domain.EmailRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date_sent", Value: -1}})
	if filter != nil {
		if filter.Offset > 0 {
			opts.SetSkip(int64(filter.Offset))
		}
		if filter.Limit > 0 {
			opts.SetLimit(int64(filter.Limit))
		}
	}
	return s.find(ctx, buildFilter(filter), opts)
}

// buildFilter translates an EmailFilter into a query document.
func buildFilter(f *domain.EmailFilter) bson.M {
	q := bson.M{}
	if f == nil || !f.IncludeGenerated {
		q["is_generated_reply"] = false
	}
	if f == nil {
		return q
	}
	if f.AIProcessed != nil {
		q["ai_processed"] = *f.AIProcessed
	}
	if f.Tag != "" {
		q["tags"] = f.Tag
	}
	if text := strings.TrimSpace(f.Query); text != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(text), "$options": "i"}
		fields := []string{"subject", "sender", "sender_name", "recipient", "recipient_name", "body_text", "tags"}
		or := make(bson.A, 0, len(fields))
		for _, name := range fields {
			or = append(or, bson.M{name: re})
		}
		q["$or"] = or
	}
	return q
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.EmailRecord, error) {
	cursor, err := s.emails.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*domain.EmailRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		normalize(r)
	}
	if records == nil {
		records = []*domain.EmailRecord{}
	}
	return records, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (*domain.DeleteResult, error) {
	res := &domain.DeleteResult{}
	for _, id := range ids {
		r, err := s.emails.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if r.DeletedCount > 0 {
			res.Succeeded++
		} else {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, id)
		}
	}
	return res, nil
}

func (s *Store) GetAllTags(ctx context.Context) ([]*domain.TagDefinition, error) {
	cursor, err := s.tags.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []tagDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	tags := make([]*domain.TagDefinition, len(docs))
	for i := range docs {
		t := docs[i].TagDefinition
		tags[i] = &t
	}
	return tags, nil
}

func (s *Store) UpsertTags(ctx context.Context, tags []*domain.TagDefinition) error {
	next, err := s.tags.CountDocuments(ctx, bson.M{})
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		name := strings.TrimSpace(t.Name)
		_, err := s.tags.UpdateOne(ctx, bson.M{"_id": name}, bson.M{
			"$set": bson.M{
				"display_name": t.DisplayName,
				"criterion":    t.Criterion,
				"description":  t.Description,
				"color":        t.Color,
				"is_active":    t.IsActive,
				"is_system":    t.IsSystem,
			},
			"$setOnInsert": bson.M{"position": next},
		}, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("upsert tag %s: %w", name, err)
		}
		next++
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func normalize(r *domain.EmailRecord) *domain.EmailRecord {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	r.DateSent = r.DateSent.UTC()
	return r
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

var _ out.Store = (*Store)(nil)
