package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockOutcome implements Outcome
type mockOutcome struct {
	err error
}

func (r *mockOutcome) GetError() error {
	return r.err
}

// mockTask implements Task
type mockTask struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockTask) Execute(ctx context.Context) Outcome {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockOutcome{err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockOutcome{err: errors.New("task error")}
	}
	return &mockOutcome{}
}

func TestNewPool(t *testing.T) {
	ctx := context.Background()

	if p := NewPool(ctx, 5); p.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p.workers)
	}
	if p := NewPool(ctx, 0); p.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p.workers)
	}
	if p := NewPool(ctx, -1); p.workers != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	var executed int32
	count := 10

	for i := 0; i < count; i++ {
		pool.Submit(&mockTask{executed: &executed})
	}

	outcomes := pool.Wait()

	if len(outcomes) != count {
		t.Errorf("expected %d outcomes, got %d", count, len(outcomes))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed tasks, got %d", count, executed)
	}
}

func TestPool_Errors(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	pool.Submit(&mockTask{shouldErr: true})
	pool.Submit(&mockTask{})

	failures := 0
	for _, o := range pool.Wait() {
		if o.GetError() != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected 1 failure, got %d", failures)
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	pool.Submit(&mockTask{duration: time.Second})
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("shutdown did not cancel the running task")
	}

	if pool.Submit(&mockTask{}) {
		t.Error("expected submit after shutdown to be rejected")
	}
}
