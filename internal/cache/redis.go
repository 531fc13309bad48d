package cache

import (
	"context"
	"time"

	"croesus/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisCache implements the Cache interface using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to connect to Redis")
		return nil, err
	}

	log.Info().
		Str("address", cfg.Address).
		Str("prefix", cfg.Prefix).
		Int("db", cfg.DB).
		Msg("Redis cache initialized successfully")

	return &RedisCache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (c *RedisCache) formatKey(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	formattedKey := c.formatKey(key)

	result, err := c.client.Get(ctx, formattedKey).Bytes()

	if err == redis.Nil {
		log.Debug().
			Str("key", formattedKey).
			Msg("Cache miss")
		return nil, ErrCacheMiss
	} else if err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Msg("Error getting value from Redis")
		return nil, err
	}

	log.Debug().
		Str("key", formattedKey).
		Int("size", len(result)).
		Msg("Cache hit")

	return result, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	formattedKey := c.formatKey(key)

	err := c.client.Set(ctx, formattedKey, value, ttl).Err()

	if err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Int("size", len(value)).
			Dur("ttl", ttl).
			Msg("Error setting value in Redis")
		return err
	}

	log.Debug().
		Str("key", formattedKey).
		Int("size", len(value)).
		Dur("ttl", ttl).
		Msg("Successfully cached value")

	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	formattedKey := c.formatKey(key)

	err := c.client.Del(ctx, formattedKey).Err()

	if err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Msg("Error deleting key from Redis")
		return err
	}

	log.Debug().
		Str("key", formattedKey).
		Msg("Successfully deleted key from cache")

	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	err := c.client.Ping(ctx).Err()

	if err != nil {
		log.Error().
			Err(err).
			Msg("Error pinging Redis")
		return err
	}

	return nil
}

func (c *RedisCache) Close() error {
	log.Info().Msg("Closing Redis cache connection")
	return c.client.Close()
}

func (c *RedisCache) Append(ctx context.Context, key string, value []byte) error {
	formattedKey := c.formatKey(key)

	if err := c.client.RPush(ctx, formattedKey, value).Err(); err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Msg("Error appending to Redis list")
		return err
	}
	return nil
}

func (c *RedisCache) List(ctx context.Context, key string) ([][]byte, error) {
	return c.readList(ctx, key, false)
}

// TakeList reads and deletes a list in one transaction
func (c *RedisCache) TakeList(ctx context.Context, key string) ([][]byte, error) {
	return c.readList(ctx, key, true)
}

func (c *RedisCache) readList(ctx context.Context, key string, remove bool) ([][]byte, error) {
	formattedKey := c.formatKey(key)

	var values *redis.StringSliceCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		values = pipe.LRange(ctx, formattedKey, 0, -1)
		if remove {
			pipe.Del(ctx, formattedKey)
		}
		return nil
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("key", formattedKey).
			Bool("remove", remove).
			Msg("Error reading Redis list")
		return nil, err
	}

	items := values.Val()
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		out = append(out, []byte(item))
	}
	return out, nil
}
