package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces entity keys in Redis.
const DefaultKeyPrefix = "entitydoc"

// RedisStore keeps each document as a string value at
// "<prefix>:entity:<resource>".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr string, db int, prefix string) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr, DB: db}), prefix)
}

// NewRedisStoreWithClient wraps an existing client. The store owns the
// client and closes it in Close.
func NewRedisStoreWithClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(resource string) string {
	return s.prefix + ":entity:" + resource
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Load(ctx context.Context, resource string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(resource)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s from redis: %w", resource, err)
	}
	return data, nil
}

func (s *RedisStore) Save(ctx context.Context, resource string, data []byte) error {
	if err := ValidateResource(resource); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(resource), data, 0).Err(); err != nil {
		return fmt.Errorf("save %s to redis: %w", resource, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, resource string) error {
	n, err := s.rdb.Del(ctx, s.key(resource)).Result()
	if err != nil {
		return fmt.Errorf("delete %s from redis: %w", resource, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List scans for entity keys without blocking the server.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	prefix := s.key("")
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()

	var result []string
	for iter.Next(ctx) {
		result = append(result, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list redis entities: %w", err)
	}
	sort.Strings(result)
	return result, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
