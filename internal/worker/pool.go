package worker

import (
	"context"
	"sync"
)

// Job is a unit of work producing a T
type Job[T any] func(ctx context.Context) T

type indexed[T any] struct {
	index int
	job   Job[T]
}

type slot[T any] struct {
	index int
	value T
}

// Pool runs jobs on a fixed number of goroutines. Wait returns results in
// submission order regardless of completion order.
type Pool[T any] struct {
	workers    int
	jobQueue   chan indexed[T]
	results    chan slot[T]
	submitted  int
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool bound to ctx
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		workers:    workers,
		jobQueue:   make(chan indexed[T], workers*2),
		results:    make(chan slot[T], workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.jobQueue:
			if !ok {
				return
			}
			value := item.job(p.ctx)
			select {
			case p.results <- slot[T]{index: item.index, value: value}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It is a no-op once the pool is shut down.
// Submit must not be called concurrently with itself or after Wait.
func (p *Pool[T]) Submit(job Job[T]) {
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- indexed[T]{index: p.submitted, job: job}:
		p.submitted++
	}
}

// Wait closes the queue and returns every finished result in submission
// order. Jobs dropped by a shutdown leave a zero value in their slot.
func (p *Pool[T]) Wait() []T {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	out := make([]T, p.submitted)
	for r := range p.results {
		out[r.index] = r.value
	}
	p.cancelFunc()
	return out
}

// Shutdown cancels running jobs and stops the workers
func (p *Pool[T]) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool[T]) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
