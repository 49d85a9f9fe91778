package session

import (
	"context"
	"time"

	"github.com/kapu/pitch-coach-go/internal/domain"
)

// KeyValue is the subset of the cache service the Redis-backed store needs.
type KeyValue interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisStore keeps session state as JSON documents with a sliding TTL.
type RedisStore struct {
	kv     KeyValue
	prefix string
	ttl    time.Duration
}

func NewRedisStore(kv KeyValue, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{kv: kv, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.SessionState, error) {
	var state domain.SessionState
	found, err := s.kv.Get(ctx, s.key(id), &state)
	if err != nil {
		return domain.SessionState{}, err
	}
	if !found {
		return domain.SessionState{}, ErrNotFound
	}
	return state, nil
}

func (s *RedisStore) Save(ctx context.Context, state domain.SessionState) error {
	return s.kv.Set(ctx, s.key(state.ID), state, s.ttl)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.kv.Del(ctx, s.key(id))
}

// RedisLocker implements the busy flag with SETNX so it holds across replicas.
// The TTL only guards against a crashed holder.
type RedisLocker struct {
	kv     KeyValue
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(kv KeyValue, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{kv: kv, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, id string) (bool, error) {
	return l.kv.SetNX(ctx, l.prefix+id, time.Now().UnixMilli(), l.ttl)
}

func (l *RedisLocker) Release(ctx context.Context, id string) error {
	return l.kv.Del(ctx, l.prefix+id)
}
