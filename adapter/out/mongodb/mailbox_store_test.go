package mongodb

import (
	"context"
	"os"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"smart_mailbox/core/domain"
)

func TestBuildFilter(t *testing.T) {
	processed := false

	if got := buildFilter(nil); !reflect.DeepEqual(got, bson.M{"is_generated_reply": false}) {
		t.Errorf("unexpected nil filter %v", got)
	}

	got := buildFilter(&domain.EmailFilter{IncludeGenerated: true, Tag: "Spam", AIProcessed: &processed})
	want := bson.M{"tags": "Spam", "ai_processed": false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	got = buildFilter(&domain.EmailFilter{Query: "a.b"})
	or, ok := got["$or"].(bson.A)
	if !ok || len(or) != 7 {
		t.Fatalf("expected 7 alternatives, got %v", got["$or"])
	}
	first := or[0].(bson.M)["subject"].(bson.M)
	if first["$regex"] != `a\.b` || first["$options"] != "i" {
		t.Errorf("expected escaped case-insensitive regex, got %v", first)
	}
}

func TestCleanTags(t *testing.T) {
	got := cleanTags([]string{" Urgent", "Urgent", "", "Spam"})
	if !reflect.DeepEqual(got, []string{"Urgent", "Spam"}) {
		t.Errorf("unexpected tags %v", got)
	}
}

// TestStoreRoundTrip runs against a live server when MONGODB_TEST_URL is set.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("MONGODB_TEST_URL")
	if url == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	db := "mailbox_test_" + t.Name()
	s := NewStore(client, db)
	t.Cleanup(func() {
		_ = client.Database(db).Drop(context.Background())
		_ = s.Close()
	})
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	id, err := s.Save(ctx, &domain.EmailRecord{Subject: "hi", FileHash: "h1"})
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.Save(ctx, &domain.EmailRecord{Subject: "hi again", FileHash: "h1"})
	if err != nil || again != id {
		t.Fatalf("expected same id, got %s %v", again, err)
	}
	if err := s.AssignTags(ctx, id, []string{"Spam"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Subject != "hi again" || !reflect.DeepEqual(got.Tags, []string{"Spam"}) {
		t.Errorf("unexpected record %+v", got)
	}
}
