// Package lock 提供按教学班串行化排课的锁
package lock

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
)

// Locker 同时锁定多个键，返回的函数释放全部键
type Locker interface {
	Lock(ctx context.Context, keys []string) (func(), error)
}

// BatchKeys 返回教学班对应的锁键，已去重并排序
func BatchKeys(batchIDs []uuid.UUID) []string {
	seen := make(map[string]bool, len(batchIDs))
	keys := make([]string, 0, len(batchIDs))
	for _, id := range batchIDs {
		k := "schedule:batch:" + id.String()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Local 进程内锁
type Local struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocal 创建进程内锁
func NewLocal() *Local {
	return &Local{locks: make(map[string]chan struct{})}
}

func (l *Local) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

// Lock 按键的字典序依次加锁，避免相互等待
func (l *Local) Lock(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, k := range sorted {
		ch := l.sem(k)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeTimeout, "等待排课锁超时: "+k)
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
