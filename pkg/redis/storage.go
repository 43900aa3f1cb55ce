package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a byte-oriented key-value wrapper. Every key is stored under
// the configured prefix so Reset only touches this storage's keys.
type Storage struct {
	db            redis.UniversalClient
	prefix        string
	scanBatchSize int64
}

type StorageOption func(*Storage)

func WithPrefix(prefix string) StorageOption {
	return func(s *Storage) { s.prefix = prefix }
}

func WithScanBatchSize(n int64) StorageOption {
	return func(s *Storage) {
		if n > 0 {
			s.scanBatchSize = n
		}
	}
}

func NewStorage(client redis.UniversalClient, opts ...StorageOption) *Storage {
	s := &Storage{db: client, scanBatchSize: 500}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns nil, nil for missing keys.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.db.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores val under key. A zero ttl means no expiration.
func (s *Storage) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	return s.db.Set(ctx, s.prefix+key, val, ttl).Err()
}

func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			full = append(full, s.prefix+k)
		}
	}
	if len(full) == 0 {
		return nil
	}
	return s.db.Del(ctx, full...).Err()
}

// Reset deletes every key under the storage prefix using SCAN.
func (s *Storage) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		batch, next, err := s.db.Scan(ctx, cursor, s.prefix+"*", s.scanBatchSize).Result()
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := s.db.Del(ctx, batch...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *Storage) Conn() redis.UniversalClient {
	return s.db
}
