package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"ipsguard/logger"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const blockPrefix = "ipsguard:block:"

type RedisStore struct {
	Client *redis.Client
	ctx    context.Context
}

func NewRedisStore(addr string, password string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &RedisStore{
		Client: client,
		ctx:    context.Background(),
	}
}

// Ping checks connectivity so startup can fall back to the local store.
func (s *RedisStore) Ping() error {
	return s.Client.Ping(s.ctx).Err()
}

func (s *RedisStore) Block(key string, b Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !b.ExpiresAt.IsZero() {
		ttl = time.Until(b.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	if err := s.Client.Set(s.ctx, blockPrefix+key, data, ttl).Err(); err != nil {
		return err
	}
	logger.Info("Distributed block issued", "key", key, "source", b.Source, "ttl", ttl)
	return nil
}

func (s *RedisStore) Lookup(key string) (Block, bool) {
	data, err := s.Client.Get(s.ctx, blockPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Block{}, false
	}
	if err != nil {
		logger.Error("Redis block lookup failed", "key", key, "err", err)
		return Block{}, false
	}
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		logger.Warn("Corrupt block entry", "key", key, "err", err)
		return Block{}, false
	}
	return b, true
}

func (s *RedisStore) IsBlocked(key string) bool {
	exists, err := s.Client.Exists(s.ctx, blockPrefix+key).Result()
	if err != nil {
		logger.Error("Redis check failed", "err", err)
		return false
	}
	return exists > 0
}

func (s *RedisStore) Unblock(key string) error {
	return s.Client.Del(s.ctx, blockPrefix+key).Err()
}

func (s *RedisStore) ListBlocks() (map[string]Block, error) {
	blocks := make(map[string]Block)
	iter := s.Client.Scan(s.ctx, 0, blockPrefix+"*", 100).Iterator()
	for iter.Next(s.ctx) {
		k := strings.TrimPrefix(iter.Val(), blockPrefix)
		if b, ok := s.Lookup(k); ok {
			blocks[k] = b
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}
