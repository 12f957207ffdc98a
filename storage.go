package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Storage is the durable key-value contract each room persists through:
// point reads/writes plus prefix listing. Every room's keys live in their
// own namespace and are only ever touched by that room's actor.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
}

// scopedStorage namespaces every key under a room id.
type scopedStorage struct {
	base  Storage
	scope string
}

func scopeStorage(base Storage, roomID string) Storage {
	return &scopedStorage{base: base, scope: roomID + "/"}
}

func (s *scopedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.base.Get(ctx, s.scope+key)
}

func (s *scopedStorage) Put(ctx context.Context, key string, value []byte) error {
	return s.base.Put(ctx, s.scope+key, value)
}

func (s *scopedStorage) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, s.scope+key)
}

func (s *scopedStorage) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	entries, err := s.base.List(ctx, s.scope+prefix)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(entries))
	for k, v := range entries {
		out[strings.TrimPrefix(k, s.scope)] = v
	}

	return out, nil
}

// memoryStorage is the default in-process store.
type memoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{entries: make(map[string][]byte)}
}

func (m *memoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), value...), true, nil
}

func (m *memoryStorage) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = append([]byte(nil), value...)

	return nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)

	return nil
}

func (m *memoryStorage) List(_ context.Context, prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	for k, v := range m.entries {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}

	return out, nil
}

// redisStorage keeps room state in Redis so rooms survive process
// restarts.
type redisStorage struct {
	client *redis.Client
}

func newRedisStorage(addr string) *redisStorage {
	return &redisStorage{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *redisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (r *redisStorage) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *redisStorage) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *redisStorage) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)

	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, found, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			out[key] = value
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
