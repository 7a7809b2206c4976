package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDocumentStore keeps documents as string keys <prefix>doc:<name> and <prefix>doc:<name>:bak.
type RedisDocumentStore struct {
	client *redis.Client
	prefix string
}

// NewRedisDocumentStore creates a new Redis document store
func NewRedisDocumentStore(addr, password string, db int, prefix string) *RedisDocumentStore {
	if prefix == "" {
		prefix = "cardgen:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	return &RedisDocumentStore{client: client, prefix: prefix}
}

// Initialize tests Redis connection
func (r *RedisDocumentStore) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func (r *RedisDocumentStore) key(name string) string {
	return r.prefix + "doc:" + name
}

func (r *RedisDocumentStore) get(ctx context.Context, key, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &ErrNotFound{Key: name}
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisDocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	return r.get(ctx, r.key(name), name)
}

func (r *RedisDocumentStore) LoadBackup(ctx context.Context, name string) ([]byte, error) {
	return r.get(ctx, r.key(name)+backupSuffix, name)
}

// Save sets primary and backup in one MULTI/EXEC transaction.
func (r *RedisDocumentStore) Save(ctx context.Context, name string, data []byte) error {
	key := r.key(name)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.Set(ctx, key+backupSuffix, data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}

func (r *RedisDocumentStore) Delete(ctx context.Context, name string) error {
	key := r.key(name)
	return r.client.Del(ctx, key, key+backupSuffix).Err()
}

func (r *RedisDocumentStore) List(ctx context.Context, prefix string) ([]string, error) {
	base := r.key("")
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, base+prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if strings.HasSuffix(k, backupSuffix) {
				continue
			}
			out = append(out, strings.TrimPrefix(k, base))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

// Health checks redis availability
func (r *RedisDocumentStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes Redis connection
func (r *RedisDocumentStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
