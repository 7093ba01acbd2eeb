// Package schedule 提供可取消的固定周期任务。
package schedule

import (
	"context"
	"sync"
	"time"
)

// Task 是一个后台周期任务。
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every 在 interval 之后首次执行 fn，之后按固定周期重复，直到 ctx 结束或调用 Stop。
// 上一次执行未结束时错过的周期会被丢弃。
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return t
}

// Stop 取消任务，可重复调用，nil 安全。
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Done 在后台协程退出后关闭。
func (t *Task) Done() <-chan struct{} {
	return t.done
}
