package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	rd "github.com/go-redis/redis/v9"
)

const cachePrefix = "CACHE"
const cacheIndexPrefix = "CACHEIDX"

// RedisBackend keeps a per-workflow index set of written keys so that
// InvalidateWorkflow can remove plans for versions it never saw written by
// this process.
type RedisBackend struct {
	redisClient rd.UniversalClient
	namespace   string
}

var _ Backend = new(RedisBackend)

func NewRedisBackend(addrs []string, namespace string) *RedisBackend {
	return &RedisBackend{
		redisClient: rd.NewUniversalClient(&rd.UniversalOptions{
			Addrs: addrs,
		}),
		namespace: namespace,
	}
}

func (b *RedisBackend) key(args ...string) string {
	return fmt.Sprintf("%s:%s", b.namespace, strings.Join(args, ":"))
}

func (b *RedisBackend) Get(workflowId string, entry string) ([]byte, error) {
	ctx := context.Background()
	val, err := b.redisClient.Get(ctx, b.key(cachePrefix, workflowId, entry)).Result()
	if err == rd.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func (b *RedisBackend) Set(workflowId string, entry string, value []byte, ttl time.Duration) error {
	ctx := context.Background()
	key := b.key(cachePrefix, workflowId, entry)
	pipe := b.redisClient.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	pipe.SAdd(ctx, b.key(cacheIndexPrefix, workflowId), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) InvalidateWorkflow(workflowId string) error {
	ctx := context.Background()
	indexKey := b.key(cacheIndexPrefix, workflowId)
	keys, err := b.redisClient.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	keys = append(keys, indexKey)
	return b.redisClient.Del(ctx, keys...).Err()
}
