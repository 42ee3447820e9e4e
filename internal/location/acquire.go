package location

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type acquireResult struct {
	fix Fix
	err error
}

// Acquire 在 timeout 内获取一次定位
//
// 定位调用与计时器竞速,先完成的一方决定结果。settled 标志保证落败的一方不再产生任何效果:
// 超时之后才返回的定位会被丢弃。返回时会取消传给 Provider 的 context。
func Acquire(ctx context.Context, p Provider, mode AccuracyMode, timeout time.Duration) (Fix, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var settled atomic.Bool
	done := make(chan acquireResult, 1)

	go func() {
		fix, err := p.CurrentPosition(ctx, mode)
		if !settled.CompareAndSwap(false, true) {
			logrus.WithFields(logrus.Fields{
				"mode":  mode,
				"error": err,
			}).Debug("discarding late location fix")
			return
		}
		done <- acquireResult{fix: fix, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return settle(r)
	case <-timer.C:
		if settled.CompareAndSwap(false, true) {
			return Fix{}, ErrTimeout
		}
		return settle(<-done)
	case <-ctx.Done():
		if settled.CompareAndSwap(false, true) {
			return Fix{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		return settle(<-done)
	}
}

func settle(r acquireResult) (Fix, error) {
	if r.err == nil {
		return r.fix, nil
	}
	if errors.Is(r.err, ErrUnavailable) || errors.Is(r.err, ErrPermissionDenied) {
		return Fix{}, r.err
	}
	return Fix{}, fmt.Errorf("%w: %w", ErrUnavailable, r.err)
}
