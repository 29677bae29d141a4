package pii

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/insight-tool/pkg/logging"
)

const defaultCacheTTL = 24 * time.Hour

// CachedDetector memoises another detector's results in Redis, keyed by a
// hash of the scanned text. Redis failures fall through to the wrapped
// detector.
type CachedDetector struct {
	next   Detector
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logging.Logger
}

// NewCachedDetector wraps next with a Redis read-through cache.
func NewCachedDetector(next Detector, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedDetector {
	if next == nil {
		panic("pii: cached detector requires a detector")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedDetector{
		next:   next,
		redis:  client,
		ttl:    ttl,
		prefix: "pii:entities:",
		logger: logger,
	}
}

// CacheKey returns the Redis key used for text.
func (c *CachedDetector) CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Detect implements Detector.
func (c *CachedDetector) Detect(ctx context.Context, text string) ([]Entity, error) {
	if c.redis == nil {
		return c.next.Detect(ctx, text)
	}
	key := c.CacheKey(text)

	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Entity
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		c.logger.Warn("pii: discarding unreadable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("pii: cache read failed", "error", err)
	}

	entities, err := c.next.Detect(ctx, text)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []Entity{}
	}
	payload, err := json.Marshal(entities)
	if err == nil {
		if setErr := c.redis.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("pii: cache write failed", "error", setErr)
		}
	}
	return entities, nil
}
