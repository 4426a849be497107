package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventCache implements ports.ProcessedEventCache using Redis. It is the
// fast path for webhook deduplication; the intent status in the database
// remains the durable guard, so a flushed cache is safe.
type EventCache struct {
	client *goredis.Client
	prefix string
}

// NewEventCache creates a Redis-backed processed-event cache.
func NewEventCache(client *goredis.Client) *EventCache {
	return &EventCache{
		client: client,
		prefix: "webhook:processed:",
	}
}

// Seen reports whether the reference was already processed.
func (c *EventCache) Seen(ctx context.Context, reference string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+reference).Result()
	if err != nil {
		return false, fmt.Errorf("redis event seen: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records a processed reference with TTL.
func (c *EventCache) MarkSeen(ctx context.Context, reference string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+reference, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis event mark seen: %w", err)
	}
	return nil
}
