package worker

import (
	"context"
	"sync"
)

// Task is a unit of work executed by the pool
type Task interface {
	Execute(ctx context.Context) Outcome
}

// Outcome is what a task reports back
type Outcome interface {
	GetError() error
}

// Pool runs tasks on a fixed number of workers
type Pool struct {
	workers    int
	tasks      chan Task
	outcomes   chan Outcome
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool whose tasks inherit ctx. Fewer than one worker means one.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		tasks:      make(chan Task, workers*2),
		outcomes:   make(chan Outcome, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			outcome := task.Execute(p.ctx)
			select {
			case p.outcomes <- outcome:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a task. It reports false if the pool was shut down first.
func (p *Pool) Submit(task Task) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.tasks <- task:
		return true
	}
}

// Wait stops accepting tasks and collects every outcome
func (p *Pool) Wait() []Outcome {
	close(p.tasks)

	go func() {
		p.wg.Wait()
		p.closeOutcomes()
	}()

	var outcomes []Outcome
	for outcome := range p.outcomes {
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// Shutdown cancels running tasks and stops the workers
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeOutcomes()
}

func (p *Pool) closeOutcomes() {
	p.closeOnce.Do(func() {
		close(p.outcomes)
	})
}
