package lock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
)

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 仍持有时续期
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis 多实例部署时使用的分布式锁
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis 创建分布式锁，ttl 应大于一次排课的最长耗时
// 持锁期间每 ttl/3 续期一次
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock 依次对每个键 SET NX，拿不到时轮询直到 ctx 结束
func (r *Redis) Lock(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	token := uuid.NewString()

	var held []string
	stop := make(chan struct{})
	release := func() {
		close(stop)
		// 释放不受调用方 ctx 影响
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(rctx, r.client, []string{held[i]}, token).Err(); err != nil {
				logger.Warn().Err(err).Str("key", held[i]).Msg("释放排课锁失败")
			}
		}
	}

	for _, k := range sorted {
		if err := r.acquire(ctx, k, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}
	go r.keepAlive(stop, held, token)

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "等待排课锁超时: "+key)
			}
			return apperrors.RepositoryUnavailable(err, "redis lock")
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "等待排课锁超时: "+key)
		}
	}
}

func (r *Redis) keepAlive(stop <-chan struct{}, keys []string, token string) {
	interval := max(r.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		for _, k := range keys {
			n, err := renewScript.Run(ctx, r.client, []string{k}, token, r.ttl.Milliseconds()).Int()
			switch {
			case err != nil:
				logger.Warn().Err(err).Str("key", k).Msg("排课锁续期失败")
			case n == 0:
				logger.Warn().Str("key", k).Msg("排课锁已失效")
			}
		}
		cancel()
	}
}
