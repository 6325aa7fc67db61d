package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRepository хранит снимки в Redis под заданным ключом.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository подключается к Redis по адресу addr и проверяет соединение.
func NewRedisRepository(addr string) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

// Close закрывает клиент Redis.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// Load возвращает снимок по ключу; второй результат false, если снимка нет.
func (r *RedisRepository) Load(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get snapshot: %w", err)
	}
	return blob, true, nil
}

// Save записывает снимок без срока жизни.
func (r *RedisRepository) Save(ctx context.Context, key string, blob []byte) error {
	if err := r.client.Set(ctx, key, blob, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}
