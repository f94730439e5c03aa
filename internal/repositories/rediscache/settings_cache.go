package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	"github.com/hanko-field/handling-fee/internal/repositories"
)

const (
	defaultKeyPrefix = "handling-fee"
	defaultTTL       = 30 * time.Second
)

// Logger mirrors the service logging hook.
type Logger func(ctx context.Context, event string, fields map[string]any)

// SettingsCache is a read-through cache in front of a settings repository. Redis
// failures never fail a request; the cache steps aside and the backing store answers.
type SettingsCache struct {
	next   repositories.HandlingFeeSettingsRepository
	rdb    redis.Cmdable
	key    string
	ttl    time.Duration
	logger Logger
}

var _ repositories.HandlingFeeSettingsRepository = (*SettingsCache)(nil)

// Option customises the cache.
type Option func(*SettingsCache)

// WithKeyPrefix namespaces the cache key.
func WithKeyPrefix(prefix string) Option {
	return func(c *SettingsCache) {
		if p := strings.Trim(strings.TrimSpace(prefix), ":"); p != "" {
			c.key = p + ":settings"
		}
	}
}

// WithTTL bounds how long a cached value may be served after another instance changes it.
func WithTTL(ttl time.Duration) Option {
	return func(c *SettingsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger receives cache degradation events.
func WithLogger(logger Logger) Option {
	return func(c *SettingsCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewSettingsCache wraps next with a Redis cache.
func NewSettingsCache(next repositories.HandlingFeeSettingsRepository, rdb redis.Cmdable, opts ...Option) (*SettingsCache, error) {
	if next == nil {
		return nil, errors.New("settings cache: backing repository is required")
	}
	if rdb == nil {
		return nil, errors.New("settings cache: redis client is required")
	}
	c := &SettingsCache{
		next:   next,
		rdb:    rdb,
		key:    defaultKeyPrefix + ":settings",
		ttl:    defaultTTL,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// GetHandlingFeeSettings serves from Redis when possible and fills the cache on a miss.
// An unconfigured fee is not cached.
func (c *SettingsCache) GetHandlingFeeSettings(ctx context.Context) (domain.HandlingFeeSettings, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var entry cacheEntry
		decodeErr := json.Unmarshal(raw, &entry)
		if decodeErr == nil {
			return entry.toDomain(), nil
		}
		c.logger(ctx, "settings_cache.decode_failed", map[string]any{"error": decodeErr.Error()})
	case errors.Is(err, redis.Nil):
	case ctx.Err() != nil:
		return domain.HandlingFeeSettings{}, ctx.Err()
	default:
		c.logger(ctx, "settings_cache.read_failed", map[string]any{"error": err.Error()})
	}

	settings, err := c.next.GetHandlingFeeSettings(ctx)
	if err != nil {
		return domain.HandlingFeeSettings{}, err
	}
	c.store(ctx, settings)
	return settings, nil
}

// SaveHandlingFeeSettings writes through to the backing store, then refreshes the cache.
func (c *SettingsCache) SaveHandlingFeeSettings(ctx context.Context, settings domain.HandlingFeeSettings) (domain.HandlingFeeSettings, error) {
	saved, err := c.next.SaveHandlingFeeSettings(ctx, settings)
	if err != nil {
		return domain.HandlingFeeSettings{}, err
	}
	if !c.store(ctx, saved) {
		// A stale entry must not outlive a failed refresh.
		if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
			c.logger(ctx, "settings_cache.invalidate_failed", map[string]any{"error": err.Error()})
		}
	}
	return saved, nil
}

func (c *SettingsCache) store(ctx context.Context, settings domain.HandlingFeeSettings) bool {
	payload, err := json.Marshal(newCacheEntry(settings))
	if err != nil {
		return false
	}
	if err := c.rdb.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
		c.logger(ctx, "settings_cache.write_failed", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

type cacheEntry struct {
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newCacheEntry(s domain.HandlingFeeSettings) cacheEntry {
	return cacheEntry{Amount: s.Amount, Currency: s.Currency, UpdatedBy: s.UpdatedBy, UpdatedAt: s.UpdatedAt.UTC()}
}

func (e cacheEntry) toDomain() domain.HandlingFeeSettings {
	return domain.HandlingFeeSettings{Amount: e.Amount, Currency: e.Currency, UpdatedBy: e.UpdatedBy, UpdatedAt: e.UpdatedAt.UTC()}
}
