package lock

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
)

func TestRedis_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewRedis(client, time.Second).Lock(ctx, []string{"schedule:batch:a"})
	if !apperrors.Is(err, apperrors.CodeRepositoryUnavailable) {
		t.Errorf("期望 REPOSITORY_UNAVAILABLE，实际 %v", err)
	}
}

// REDIS_TEST_ADDR 未设置时跳过
func testRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func TestRedis_RenewsWhileHeld(t *testing.T) {
	client := testRedis(t)
	keys := []string{"schedule:batch:test-" + time.Now().Format("150405.000000")}
	l := NewRedis(client, 300*time.Millisecond)

	unlock, err := l.Lock(context.Background(), keys)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// 持锁时间超过 ttl，续期后其他请求仍拿不到锁
	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		second, err := l.Lock(ctx, keys)
		if err != nil {
			t.Error(err)
			return
		}
		acquired.Store(true)
		second()
	}()

	time.Sleep(time.Second)
	if acquired.Load() {
		t.Fatal("锁在持有期间过期")
	}
	unlock()
	unlock()
	<-done
	if !acquired.Load() {
		t.Error("释放后应能拿到锁")
	}
	if n, _ := client.Exists(context.Background(), keys...).Result(); n != 0 {
		t.Errorf("释放后键应被删除，实际存在 %d", n)
	}
}

func TestRedis_Timeout(t *testing.T) {
	client := testRedis(t)
	keys := []string{"schedule:batch:timeout-" + time.Now().Format("150405.000000")}
	l := NewRedis(client, time.Second)

	unlock, err := l.Lock(context.Background(), keys)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, keys)
	if !apperrors.Is(err, apperrors.CodeTimeout) {
		t.Errorf("期望 TIMEOUT，实际 %v", err)
	}
}
