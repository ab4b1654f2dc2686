package price

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through store for resolved prices. Lookups are hot on
// busy streams, so a shared cache keeps provider traffic bounded.
type Cache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, value float64)
	Close() error
}

// NoOpCache is used when Redis is disabled; every lookup is a miss.
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) (float64, bool) { return 0, false }
func (NoOpCache) Set(ctx context.Context, key string, value float64)  {}
func (NoOpCache) Close() error                                        { return nil }

// RedisCache stores prices in Redis with a TTL. Cache failures degrade to
// misses; they never block a price lookup.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig holds connection settings for the price cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
		prefix: "walletpulse:price:",
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value float64) {
	c.client.Set(ctx, c.prefix+key, strconv.FormatFloat(value, 'f', -1, 64), c.ttl)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
