package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aidqr/aidqr/internal/quota"
)

// RedisGateway stores the table as one hash: field = user id, value = the
// record's JSON.
type RedisGateway struct {
	rdb redis.Cmdable
	key string
}

// NewRedisGateway creates a gateway writing to the hash at key.
func NewRedisGateway(rdb redis.Cmdable, key string) *RedisGateway {
	return &RedisGateway{rdb: rdb, key: key}
}

func (g *RedisGateway) Load(ctx context.Context) (quota.Table, error) {
	fields, err := g.rdb.HGetAll(ctx, g.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading hash %s: %w", g.key, err)
	}

	table := make(quota.Table, len(fields))
	for id, raw := range fields {
		rec, err := decodeRecord(id, []byte(raw))
		if err != nil {
			return nil, err
		}
		table[id] = rec
	}
	return table, nil
}

// Save replaces the whole hash in one MULTI/EXEC transaction.
func (g *RedisGateway) Save(ctx context.Context, table quota.Table) error {
	values := make(map[string]any, len(table))
	for id, rec := range table {
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		values[id] = data
	}

	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, g.key)
		if len(values) > 0 {
			pipe.HSet(ctx, g.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing hash %s: %w", g.key, err)
	}
	return nil
}

func (g *RedisGateway) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}
