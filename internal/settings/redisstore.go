package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "sheetimage:settings"

// RedisBackend stores all settings as fields of a single hash.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend accepts either a redis:// URL or a plain host:port address.
func NewRedisBackend(connectionString, key string) (*RedisBackend, error) {
	var options *redis.Options
	if strings.HasPrefix(connectionString, "redis://") || strings.HasPrefix(connectionString, "rediss://") {
		parsed, err := redis.ParseURL(connectionString)
		if err != nil {
			return nil, fmt.Errorf("invalid redis connection string: %w", err)
		}
		options = parsed
	} else {
		options = &redis.Options{Addr: connectionString}
	}
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisBackend{
		client: redis.NewClient(options),
		key:    key,
	}, nil
}

func (r *RedisBackend) LoadAll(ctx context.Context) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash %s: %w", r.key, err)
	}
	return values, nil
}

func (r *RedisBackend) SaveAll(ctx context.Context, values map[string]string) error {
	fields := make([]any, 0, len(values)*2)
	for key, value := range values {
		fields = append(fields, key, value)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, r.key, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write hash %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
