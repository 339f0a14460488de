package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

const (
	cacheKeyPrefix = "investigate:geoip:"
	// negative results are remembered so repeated misses skip the upstream
	negativeMarker = "-"
)

// CachedLocator fronts another Locator with Redis. Cache failures fall
// through to the upstream and are never surfaced.
type CachedLocator struct {
	next   Locator
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedLocator(next Locator, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedLocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLocator{next: next, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedLocator) Locate(ctx context.Context, ip string) (*models.GeoInfo, error) {
	key := cacheKeyPrefix + ip

	data, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil && data == negativeMarker:
		return nil, models.ErrGeoNotFound
	case err == nil:
		var info models.GeoInfo
		if jsonErr := json.Unmarshal([]byte(data), &info); jsonErr == nil {
			return &info, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("geoip cache read failed", slog.String("ip", ip), slog.String("error", err.Error()))
	}

	info, err := c.next.Locate(ctx, ip)
	if errors.Is(err, models.ErrGeoNotFound) {
		c.store(ctx, key, negativeMarker)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(info); jsonErr == nil {
		c.store(ctx, key, string(encoded))
	}
	return info, nil
}

func (c *CachedLocator) store(ctx context.Context, key, value string) {
	if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("geoip cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
