package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/stretchr/testify/assert"
)

// TestProgressBoard_TicksAndCap 测试进度递增且不超过 100
func TestProgressBoard_TicksAndCap(t *testing.T) {
	board := service.NewProgressBoard()
	run := board.Begin("ivan", "1", 5*time.Millisecond, 40)

	assert.Eventually(t, func() bool {
		return board.Get("ivan", "1").Progress == 100
	}, time.Second, 5*time.Millisecond)
	assert.True(t, board.Get("ivan", "1").Loading)

	run.Settle(false, 0)
	p := board.Get("ivan", "1")
	assert.False(t, p.Loading)
	assert.Equal(t, 0, p.Progress)
}

// TestProgressBoard_NoTicksAfterSettle 结束后不再有计时增量
func TestProgressBoard_NoTicksAfterSettle(t *testing.T) {
	board := service.NewProgressBoard()
	var mu sync.Mutex
	updates := 0
	board.SetListener(func(p service.Progress) {
		mu.Lock()
		defer mu.Unlock()
		updates++
	})

	run := board.Begin("ivan", "1", 5*time.Millisecond, 5)
	time.Sleep(20 * time.Millisecond)
	run.Settle(false, time.Hour)

	mu.Lock()
	after := updates
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, updates)
}

// TestProgressBoard_SettleSuccessThenReset 成功时置为 100 并在延迟后归零
func TestProgressBoard_SettleSuccessThenReset(t *testing.T) {
	board := service.NewProgressBoard()
	run := board.Begin("ivan", "1", 0, 0)
	assert.True(t, board.Get("ivan", "1").Loading)

	run.Settle(true, 20*time.Millisecond)
	assert.Equal(t, 100, board.Get("ivan", "1").Progress)

	assert.Eventually(t, func() bool {
		return board.Get("ivan", "1").Progress == 0
	}, time.Second, 5*time.Millisecond)

	// 重复结束无效果
	run.Settle(true, 0)
	assert.Equal(t, 0, board.Get("ivan", "1").Progress)
}

// TestProgressBoard_NewRunNotResetByOld 旧一轮的延迟归零不影响新一轮
func TestProgressBoard_NewRunNotResetByOld(t *testing.T) {
	board := service.NewProgressBoard()
	first := board.Begin("ivan", "1", 0, 0)
	first.Settle(true, 20*time.Millisecond)

	second := board.Begin("ivan", "1", 0, 0)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, board.Get("ivan", "1").Loading)

	second.Settle(true, time.Hour)
	assert.Equal(t, 100, board.Get("ivan", "1").Progress)
}

// TestProgressBoard_Unknown 未知任务的进度为零值
func TestProgressBoard_Unknown(t *testing.T) {
	p := service.NewProgressBoard().Get("ivan", "404")
	assert.Equal(t, "404", p.TaskID)
	assert.False(t, p.Loading)
	assert.Equal(t, 0, p.Progress)
}
