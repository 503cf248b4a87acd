// Package redis implements the zset.Store contract on go-redis/v9. Batches
// run as MULTI/EXEC transactions so a document's mutations are applied
// atomically; direct reads, existence checks, and pattern-based invalidation
// bypass the transaction path.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kersley/resound/pkg/config"
	"github.com/kersley/resound/pkg/zset"
)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

var _ zset.Store = (*Client)(nil)

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Batch queues every command on a MULTI/EXEC pipeline and returns one result
// per command in submission order. If EXEC fails nothing is applied.
func (c *Client) Batch(ctx context.Context, cmds []zset.Command) ([]zset.Result, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	queued, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, cmd := range cmds {
			if err := queue(ctx, pipe, cmd); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch of %d commands: %w", len(cmds), err)
	}
	results := make([]zset.Result, len(queued))
	for i, q := range queued {
		switch v := q.(type) {
		case *redis.IntCmd:
			results[i].Count = v.Val()
		case *redis.FloatCmd:
			results[i].Score = v.Val()
		case *redis.BoolCmd:
			if v.Val() {
				results[i].Count = 1
			}
		case *redis.StringSliceCmd:
			results[i].Members = v.Val()
		default:
			return nil, fmt.Errorf("batch result %d: unexpected reply type %T", i, q)
		}
	}
	return results, nil
}

func queue(ctx context.Context, pipe redis.Pipeliner, cmd zset.Command) error {
	switch cmd.Op {
	case zset.OpAdd:
		pipe.ZAdd(ctx, cmd.Key, redis.Z{Score: cmd.Score, Member: cmd.Member})
	case zset.OpIncrBy:
		pipe.ZIncrBy(ctx, cmd.Key, cmd.Score, cmd.Member)
	case zset.OpRem:
		pipe.ZRem(ctx, cmd.Key, cmd.Member)
	case zset.OpRemRangeByRank:
		pipe.ZRemRangeByRank(ctx, cmd.Key, cmd.From, cmd.To)
	case zset.OpInterInto:
		if len(cmd.Keys) == 0 {
			return fmt.Errorf("interinto %s: no source keys", cmd.Key)
		}
		pipe.ZInterStore(ctx, cmd.Key, &redis.ZStore{Keys: cmd.Keys})
	case zset.OpUnionInto:
		if len(cmd.Keys) == 0 {
			return fmt.Errorf("unioninto %s: no source keys", cmd.Key)
		}
		pipe.ZUnionStore(ctx, cmd.Key, &redis.ZStore{Keys: cmd.Keys})
	case zset.OpDel:
		pipe.Del(ctx, cmd.Key)
	case zset.OpRangeAsc:
		pipe.ZRange(ctx, cmd.Key, cmd.From, cmd.To)
	case zset.OpRangeDesc:
		pipe.ZRevRange(ctx, cmd.Key, cmd.From, cmd.To)
	case zset.OpExpire:
		pipe.Expire(ctx, cmd.Key, cmd.TTL)
	default:
		return fmt.Errorf("unsupported command op %s", cmd.Op)
	}
	return nil
}

// RangeAsc reads members ranked [from, to], lowest score first.
func (c *Client) RangeAsc(ctx context.Context, key string, from, to int64) ([]string, error) {
	members, err := c.rdb.ZRange(ctx, key, from, to).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	return members, nil
}

// RangeDesc reads members ranked [from, to], highest score first.
func (c *Client) RangeDesc(ctx context.Context, key string, from, to int64) ([]string, error) {
	members, err := c.rdb.ZRevRange(ctx, key, from, to).Result()
	if err != nil {
		return nil, fmt.Errorf("revrange %s: %w", key, err)
	}
	return members, nil
}

// Exists reports whether the key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// DeleteByPattern scans for keys matching the glob pattern and deletes them,
// returning the number of keys removed.
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("deleting key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	return deleted, nil
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
