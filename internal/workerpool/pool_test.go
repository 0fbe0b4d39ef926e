package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"
)

// TestRunUnboundedExecutesEveryTask verifies every index in [0, n) runs
// exactly once when numWorkers is unbounded.
func TestRunUnboundedExecutesEveryTask(t *testing.T) {
	p := New(0)
	var count atomic.Int32
	err := p.Run(50, func(i int) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
	if count.Load() != 50 {
		t.Errorf("expected 50 task invocations, got %d", count.Load())
	}
}

// TestRunBoundedExecutesEveryTask verifies bounded worker mode still runs
// every task exactly once.
func TestRunBoundedExecutesEveryTask(t *testing.T) {
	p := New(4)
	seen := make([]int32, 20)
	err := p.Run(20, func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
	for i, v := range seen {
		if v != 1 {
			t.Errorf("task %d ran %d times, want 1", i, v)
		}
	}
}

// TestRunPropagatesFirstError verifies Run returns a non-nil error when any
// task fails, without skipping the remaining tasks.
func TestRunPropagatesFirstError(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")
	var ran atomic.Int32
	err := p.Run(10, func(i int) error {
		ran.Add(1)
		if i == 5 {
			return boom
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected Run to return an error")
	}
	if ran.Load() != 10 {
		t.Errorf("expected all 10 tasks to run despite the failure, got %d", ran.Load())
	}
}

// TestRunZeroTasksIsNoop verifies Run(0, ...) does nothing and returns nil.
func TestRunZeroTasksIsNoop(t *testing.T) {
	p := New(4)
	called := false
	if err := p.Run(0, func(i int) error { called = true; return nil }); err != nil {
		t.Fatalf("Run(0, ...) returned an error: %v", err)
	}
	if called {
		t.Errorf("Run(0, ...) should never invoke fn")
	}
}
