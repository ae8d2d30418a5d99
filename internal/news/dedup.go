package news

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"herald/pkg/logging"
)

// Tracker remembers which articles have already produced a draft so the
// same story is not pitched twice. Redis is preferred; when no client is
// configured, or Redis errors, an in-memory set keeps the process honest
// for its own lifetime.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewTracker(client *redis.Client, ttl time.Duration, logger logging.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: logger,
		seen:   make(map[string]time.Time),
	}
}

func (t *Tracker) key(articleID string) string {
	return fmt.Sprintf("herald:seen:article:%s", articleID)
}

// Seen reports whether an article was already used. Redis errors degrade
// to "not seen" so a cache outage never blocks content generation.
func (t *Tracker) Seen(ctx context.Context, articleID string) bool {
	if t.seenLocal(articleID) {
		return true
	}
	if t.client == nil {
		return false
	}

	exists, err := t.client.Exists(ctx, t.key(articleID)).Result()
	if err != nil {
		t.logger.WithError(err).WithField("article_id", articleID).Warn("Dedup tracker: Redis check failed")
		return false
	}
	return exists == 1
}

func (t *Tracker) Mark(ctx context.Context, articleID string) {
	t.markLocal(articleID)
	if t.client == nil {
		return
	}

	if err := t.client.Set(ctx, t.key(articleID), "1", t.ttl).Err(); err != nil {
		t.logger.WithError(err).WithField("article_id", articleID).Warn("Dedup tracker: Redis mark failed")
	}
}

func (t *Tracker) seenLocal(articleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expires, ok := t.seen[articleID]
	if !ok {
		return false
	}
	if time.Now().After(expires) {
		delete(t.seen, articleID)
		return false
	}
	return true
}

func (t *Tracker) markLocal(articleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[articleID] = time.Now().Add(t.ttl)
}
