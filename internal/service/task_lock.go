package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// taskLocks 按任务串行化到场确认和完成
// 每个调用者仍使用自己的 ctx 和定位来源,只是依次执行;无人持有时条目被回收
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	sem  *semaphore.Weighted
	refs int
}

// acquire 等待任务锁,ctx 结束时放弃等待
func (l *taskLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*taskLock)
	}
	lock, ok := l.locks[key]
	if !ok {
		lock = &taskLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	if err := lock.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, lock)
		return nil, err
	}
	return func() {
		lock.sem.Release(1)
		l.unref(key, lock)
	}, nil
}

func (l *taskLocks) unref(key string, lock *taskLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

