package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
	"github.com/kirillkom/shipment-tariff-agent/internal/core/ports"
)

const keyPrefix = "tariff:classification:"

// LayeredCache keeps hot classification rows in Redis in front of the
// durable store. Redis failures degrade to the durable store only.
type LayeredCache struct {
	client  *redis.Client
	primary ports.ClassificationCache
	ttl     time.Duration
	logger  *slog.Logger
}

func NewLayeredCache(client *redis.Client, primary ports.ClassificationCache, ttl time.Duration, logger *slog.Logger) *LayeredCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LayeredCache{client: client, primary: primary, ttl: ttl, logger: logger}
}

// NewClient builds a Redis client from a redis:// URL.
func NewClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *LayeredCache) GetBatch(ctx context.Context, hashes []string, destination, origin string) (map[string]domain.ClassificationCacheEntry, error) {
	out := make(map[string]domain.ClassificationCacheEntry, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	missing := hashes
	if hot, err := c.readHot(ctx, hashes, destination, origin); err != nil {
		c.logger.Warn("redis_cache_read_failed", "keys", len(hashes), "error", err)
	} else {
		missing = make([]string, 0, len(hashes))
		for _, h := range hashes {
			if entry, ok := hot[h]; ok {
				out[h] = entry
				continue
			}
			missing = append(missing, h)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	cold, err := c.primary.GetBatch(ctx, missing, destination, origin)
	if err != nil {
		if len(out) > 0 {
			c.logger.Warn("primary_cache_read_failed", "keys", len(missing), "hot_hits", len(out), "error", err)
			return out, nil
		}
		return nil, err
	}
	for h, entry := range cold {
		out[h] = entry
	}
	c.writeHot(ctx, cold)
	return out, nil
}

// Upsert writes through: the durable store first, then Redis.
func (c *LayeredCache) Upsert(ctx context.Context, entry domain.ClassificationCacheEntry) error {
	if err := c.primary.Upsert(ctx, entry); err != nil {
		return err
	}
	c.writeHot(ctx, map[string]domain.ClassificationCacheEntry{entry.ContentHash: entry})
	return nil
}

func (c *LayeredCache) readHot(ctx context.Context, hashes []string, destination, origin string) (map[string]domain.ClassificationCacheEntry, error) {
	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, cacheKey(h))
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.ClassificationCacheEntry, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry domain.ClassificationCacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			c.logger.Warn("redis_cache_entry_corrupt", "key", keys[i], "error", err)
			continue
		}
		if entry.DestinationCountry != destination || entry.OriginCountry != origin {
			continue
		}
		out[hashes[i]] = entry
	}
	return out, nil
}

func (c *LayeredCache) writeHot(ctx context.Context, entries map[string]domain.ClassificationCacheEntry) {
	if len(entries) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for h, entry := range entries {
		payload, err := json.Marshal(entry)
		if err != nil {
			c.logger.Warn("redis_cache_encode_failed", "content_hash", h, "error", err)
			continue
		}
		pipe.Set(ctx, cacheKey(h), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("redis_cache_write_failed", "keys", len(entries), "error", err)
	}
}

func cacheKey(hash string) string {
	return keyPrefix + hash
}
