// Package redis provides a Redis-backed snapshot store for credit records.
//
// Each record is stored as a JSON value under a per-record key, with a set
// holding the index of known records. This keeps Load cheap and lets Delete
// stay atomic per record.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fishlinghu/magma/credit"
)

// Store is a Redis-backed snapshot store.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ credit.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "credit:record:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed snapshot store.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "credit:record:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(sessionID string, chargingKey uint32) string {
	return fmt.Sprintf("%s%s:%d", s.keyPrefix, sessionID, chargingKey)
}

func (s *Store) indexKey() string {
	return s.keyPrefix + "index"
}

// Save upserts the given snapshots.
func (s *Store) Save(ctx context.Context, records []credit.RecordSnapshot) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("credit/redis: marshal record: %w", err)
		}
		key := s.recordKey(r.SessionID, r.ChargingKey)
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, s.indexKey(), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credit/redis: save: %w", err)
	}
	return nil
}

// Load returns all persisted snapshots.
func (s *Store) Load(ctx context.Context) ([]credit.RecordSnapshot, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("credit/redis: load index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("credit/redis: load records: %w", err)
	}

	var out []credit.RecordSnapshot
	for i, v := range values {
		if v == nil {
			// Record key expired or was deleted out of band; drop the
			// stale index entry.
			s.client.SRem(ctx, s.indexKey(), keys[i])
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("credit/redis: unexpected value type %T for %s", v, keys[i])
		}
		var r credit.RecordSnapshot
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("credit/redis: unmarshal %s: %w", keys[i], err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Delete removes the snapshot for one record.
func (s *Store) Delete(ctx context.Context, sessionID string, chargingKey uint32) error {
	key := s.recordKey(sessionID, chargingKey)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credit/redis: delete: %w", err)
	}
	return nil
}
