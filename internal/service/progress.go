package service

import (
	"sync"
	"time"
)

// Progress 任务操作的进度状态,progress 为 0 到 100 的整数
type Progress struct {
	TaskID   string `json:"taskId"`
	Worker   string `json:"worker"`
	Loading  bool   `json:"loading"`
	Progress int    `json:"progress"`
}

// ProgressListener 进度变化回调
type ProgressListener func(Progress)

type progressEntry struct {
	state Progress
	gen   uint64
}

// ProgressBoard 按任务记录进度
//
// 进度只用于提示,不代表真实的定位进展。同一任务上新的一轮会覆盖旧的一轮,
// 旧一轮的延迟归零不会影响新一轮。
type ProgressBoard struct {
	mu       sync.Mutex
	entries  map[string]*progressEntry
	listener ProgressListener
}

// NewProgressBoard 创建进度板
func NewProgressBoard() *ProgressBoard {
	return &ProgressBoard{entries: make(map[string]*progressEntry)}
}

// SetListener 设置进度变化回调
func (b *ProgressBoard) SetListener(listener ProgressListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
}

// Get 读取任务当前进度
func (b *ProgressBoard) Get(worker, taskID string) Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[progressKey(worker, taskID)]; ok {
		return e.state
	}
	return Progress{TaskID: taskID, Worker: worker}
}

// Begin 开始一轮进度,interval 大于 0 时每个周期增加 step,最多到 100
func (b *ProgressBoard) Begin(worker, taskID string, interval time.Duration, step int) *ProgressRun {
	key := progressKey(worker, taskID)

	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &progressEntry{}
		b.entries[key] = e
	}
	e.gen++
	e.state = Progress{TaskID: taskID, Worker: worker, Loading: true, Progress: 0}
	run := &ProgressRun{board: b, key: key, gen: e.gen, stop: make(chan struct{}), done: make(chan struct{})}
	snapshot, listener := e.state, b.listener
	b.mu.Unlock()

	notify(listener, snapshot)

	if interval <= 0 || step <= 0 {
		close(run.done)
		return run
	}
	go run.tick(interval, step)
	return run
}

// ProgressRun 一轮进度
type ProgressRun struct {
	board *ProgressBoard
	key   string
	gen   uint64
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (r *ProgressRun) tick(interval time.Duration, step int) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.update(func(p *Progress) bool {
				if p.Progress >= 100 {
					return false
				}
				p.Progress += step
				if p.Progress > 100 {
					p.Progress = 100
				}
				return true
			})
		}
	}
}

// Settle 结束本轮: 停止计时,成功时置为 100,并在 resetDelay 后归零并移除条目
//
// 返回后不会再有任何计时增量。多次调用只有第一次生效。
func (r *ProgressRun) Settle(ok bool, resetDelay time.Duration) {
	r.once.Do(func() {
		close(r.stop)
		<-r.done

		r.update(func(p *Progress) bool {
			p.Loading = false
			if ok {
				p.Progress = 100
			}
			return true
		})

		reset := func() {
			r.update(func(p *Progress) bool {
				if p.Progress == 0 {
					return false
				}
				p.Progress = 0
				return true
			})
			r.board.forget(r.key, r.gen)
		}
		if resetDelay <= 0 {
			reset()
			return
		}
		time.AfterFunc(resetDelay, reset)
	})
}

// update 在本轮仍是最新一轮时修改状态并通知
func (r *ProgressRun) update(mutate func(p *Progress) bool) {
	b := r.board
	b.mu.Lock()
	e, ok := b.entries[r.key]
	if !ok || e.gen != r.gen || !mutate(&e.state) {
		b.mu.Unlock()
		return
	}
	snapshot, listener := e.state, b.listener
	b.mu.Unlock()

	notify(listener, snapshot)
}

// forget 归零后移除条目;期间已开始新一轮时保留
func (b *ProgressBoard) forget(key string, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok && e.gen == gen {
		delete(b.entries, key)
	}
}

func notify(listener ProgressListener, p Progress) {
	if listener != nil {
		listener(p)
	}
}

func progressKey(worker, taskID string) string {
	return worker + "/" + taskID
}
