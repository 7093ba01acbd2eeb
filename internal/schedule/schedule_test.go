package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRunsUntilStopped(t *testing.T) {
	var runs atomic.Int32
	task := Every(context.Background(), 5*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("task ran only %d times", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	task.Stop()
	task.Stop()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop")
	}
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatal("task kept running after stop")
	}
}

func TestEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Every(ctx, time.Hour, func(context.Context) {
		t.Error("must not run before the first interval elapses")
	})
	cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not observe context cancellation")
	}
}

func TestNilTaskStop(t *testing.T) {
	var task *Task
	task.Stop()
}
