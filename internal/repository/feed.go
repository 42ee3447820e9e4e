package repository

import "sync"

// subscription 一个订阅者,changed 只缓冲一个信号,多次变化会被合并
type subscription struct {
	worker  string
	changed chan struct{}
}

// changeFeed 进程内的变更通知
type changeFeed struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{subs: make(map[*subscription]struct{})}
}

func (f *changeFeed) add(worker string) *subscription {
	sub := &subscription{worker: worker, changed: make(chan struct{}, 1)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

func (f *changeFeed) remove(sub *subscription) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

// notify 通知订阅了该工人或全部任务的订阅者
func (f *changeFeed) notify(worker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		if sub.worker != "" && sub.worker != worker {
			continue
		}
		select {
		case sub.changed <- struct{}{}:
		default:
		}
	}
}
