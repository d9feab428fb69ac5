package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"smart_mailbox/core/domain"
)

// Watcher tails the progress stream. Every watcher sees every message; there
// is no consumer group because nothing needs acknowledging.
type Watcher struct {
	client *redis.Client
	stream string
	block  time.Duration
	log    zerolog.Logger
}

func NewWatcher(client *redis.Client, log zerolog.Logger) *Watcher {
	return &Watcher{
		client: client,
		stream: StreamProgress,
		block:  5 * time.Second,
		log:    log.With().Str("component", "progress_watcher").Logger(),
	}
}

// Run calls fn for each message published after Run starts, until ctx ends
// or fn returns false.
func (w *Watcher) Run(ctx context.Context, fn func(*domain.Progress) bool) error {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := w.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{w.stream, lastID},
			Count:   50,
			Block:   w.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("error reading progress stream")
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				p, err := decodeProgress(msg)
				if err != nil {
					w.log.Warn().Err(err).Str("id", msg.ID).Msg("skipping message")
					continue
				}
				if !fn(p) {
					return nil
				}
			}
		}
	}
}

func decodeProgress(msg redis.XMessage) (*domain.Progress, error) {
	data, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("invalid message format: missing data field")
	}
	s, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format: data is not a string")
	}
	var p domain.Progress
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}
