package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"warden/internal/analysis"
	"warden/internal/config"
)

const redisKeyPrefix = "warden:analysis:"

// RedisStore 以 JSON 字符串保存结果，过期由 Redis TTL 负责。
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore 连接 Redis。
func NewRedisStore(ctx context.Context, cfg config.Redis, ttl time.Duration) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisStore(client, ttl), nil
}

func newRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String()
}

// Load 实现 analysis.Store。
func (s *RedisStore) Load(ctx context.Context, id uuid.UUID) (*analysis.Entry, error) {
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, analysis.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("Redis 读取缓存失败: %w", err)
	}
	var entry analysis.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrCacheMiss, err)
	}
	return &entry, nil
}

// Save 实现 analysis.Store。
func (s *RedisStore) Save(ctx context.Context, entry analysis.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(entry.ExtensionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("Redis 写入缓存失败: %w", err)
	}
	return nil
}

// Purge 实现 analysis.Store，过期键由 TTL 清理。
func (s *RedisStore) Purge(context.Context, time.Time) (int, error) { return 0, nil }

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
