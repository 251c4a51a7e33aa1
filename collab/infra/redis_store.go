package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shardhub/collab/domain"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore guarda cada documento numa string "<prefix>:doc:<shard>".
type RedisBlobStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

var _ domain.BlobStore = (*RedisBlobStore)(nil)

type RedisStoreOption func(*RedisBlobStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisBlobStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithDocumentTTL faz o documento expirar após d sem escrita. 0 = nunca.
func WithDocumentTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisBlobStore) { s.ttl = d }
}

func NewRedisBlobStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisBlobStore {
	s := &RedisBlobStore{rdb: rdb, prefix: "shardhub"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisBlobStore) key(k domain.ShardKey) string {
	return s.prefix + ":doc:" + string(k)
}

func (s *RedisBlobStore) Get(ctx context.Context, key domain.ShardKey) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, nil
}

func (s *RedisBlobStore) Put(ctx context.Context, key domain.ShardKey, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Close não fecha o client: ele pertence a quem o criou (e costuma ser
// compartilhado com o RedisRecorder).
func (s *RedisBlobStore) Close() error { return nil }
