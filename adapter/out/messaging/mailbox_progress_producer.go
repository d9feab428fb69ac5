// Package messaging publishes batch progress on Redis streams.
package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"smart_mailbox/core/domain"
	"smart_mailbox/core/port/out"
)

const (
	StreamProgress = "mailbox:progress"

	batchStatusKeyPrefix = "mailbox:batch:"
	batchStatusTTL       = 24 * time.Hour
	defaultMaxLen        = 10000
)

// RedisProgress implements out.ProgressPublisher on a Redis stream. The last
// message of every batch is also kept in a hash for status polling.
type RedisProgress struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisProgress(client *redis.Client) *RedisProgress {
	return &RedisProgress{client: client, stream: StreamProgress, maxLen: defaultMaxLen}
}

// PublishProgress appends p to the stream.
func (r *RedisProgress) PublishProgress(ctx context.Context, p *domain.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.stream,
			MaxLen: r.maxLen,
			Approx: true,
			ID:     "*",
			Values: map[string]interface{}{
				"data": string(data),
			},
		})
		if p.BatchID != "" {
			key := batchStatusKeyPrefix + p.BatchID
			pipe.HSet(ctx, key,
				"index", p.Index,
				"total", p.Total,
				"status", p.Status,
				"done", strconv.FormatBool(p.Done),
			)
			pipe.Expire(ctx, key, batchStatusTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.stream, err)
	}
	return nil
}

// BatchStatus returns the last progress recorded for batchID, or nil.
func (r *RedisProgress) BatchStatus(ctx context.Context, batchID string) (*domain.Progress, error) {
	result, err := r.client.HGetAll(ctx, batchStatusKeyPrefix+batchID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get batch status: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return progressFromHash(batchID, result), nil
}

func progressFromHash(batchID string, h map[string]string) *domain.Progress {
	p := &domain.Progress{BatchID: batchID, Status: h["status"]}
	p.Index, _ = strconv.Atoi(h["index"])
	p.Total, _ = strconv.Atoi(h["total"])
	p.Done, _ = strconv.ParseBool(h["done"])
	return p
}

var _ out.ProgressPublisher = (*RedisProgress)(nil)
