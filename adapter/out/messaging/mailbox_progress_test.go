package messaging

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
)

func TestDecodeProgress(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		wantErr bool
	}{
		{"valid", map[string]interface{}{"data": `{"batch_id":"b1","index":2,"total":3,"status":"Processed a.eml"}`}, false},
		{"missing data", map[string]interface{}{"other": "x"}, true},
		{"not a string", map[string]interface{}{"data": 42}, true},
		{"bad json", map[string]interface{}{"data": "{"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodeProgress(redis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.BatchID != "b1" || p.Index != 2 || p.Total != 3 {
				t.Errorf("unexpected progress %+v", p)
			}
		})
	}
}

func TestProgressFromHash(t *testing.T) {
	p := progressFromHash("b1", map[string]string{"index": "3", "total": "3", "status": "done", "done": "true"})
	if p.Index != 3 || p.Total != 3 || !p.Done || p.Status != "done" || p.BatchID != "b1" {
		t.Errorf("unexpected progress %+v", p)
	}
}

// TestPublishAndWatch runs against a live server when REDIS_TEST_URL is set.
func TestPublishAndWatch(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub := NewRedisProgress(client)
	w := NewWatcher(client, zerolog.Nop())
	w.block = 200 * time.Millisecond

	got := make(chan *domain.Progress, 1)
	go func() {
		_ = w.Run(ctx, func(p *domain.Progress) bool {
			got <- p
			return false
		})
	}()

	time.Sleep(300 * time.Millisecond)
	want := &domain.Progress{BatchID: "test-batch", Index: 1, Total: 1, Status: "ok", Done: true}
	if err := pub.PublishProgress(ctx, want); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p.BatchID != want.BatchID || !p.Done {
			t.Errorf("unexpected progress %+v", p)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for progress")
	}

	status, err := pub.BatchStatus(ctx, "test-batch")
	if err != nil || status == nil || !status.Done {
		t.Errorf("unexpected status %+v %v", status, err)
	}
}
