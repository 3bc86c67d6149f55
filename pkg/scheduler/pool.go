package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	ErrPoolFull   = errors.New("scheduler queue is full")
	ErrPoolClosed = errors.New("scheduler is closed")
)

// Job is a unit of remote work.
type Job func(ctx context.Context) (any, error)

// Future is the pending result of a submitted Job.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

// Wait blocks until the job finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type item struct {
	ctx context.Context
	job Job
	fut *Future
}

// Pool is the process-wide executor for remote calls. Callers submit a job
// and block on its Future; the caller's goroutine never performs the I/O.
type Pool struct {
	queue chan item

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(queueSize int) *Pool {
	return &Pool{
		queue: make(chan item, queueSize),
	}
}

// Start launches n workers.
func (p *Pool) Start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for it := range p.queue {
		run(it)
	}
}

func run(it item) {
	defer close(it.fut.done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: job panicked: %v", r)
			it.fut.err = fmt.Errorf("scheduler: job panicked: %v", r)
		}
	}()
	if err := it.ctx.Err(); err != nil {
		it.fut.err = err
		return
	}
	it.fut.value, it.fut.err = it.job(it.ctx)
}

// Submit queues job without blocking. It fails with ErrPoolFull when the
// queue has no room and ErrPoolClosed after Shutdown.
func (p *Pool) Submit(ctx context.Context, job Job) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	fut := &Future{done: make(chan struct{})}
	select {
	case p.queue <- item{ctx: ctx, job: job, fut: fut}:
		return fut, nil
	default:
		return nil, ErrPoolFull
	}
}

// Do submits job and waits for its result.
func (p *Pool) Do(ctx context.Context, job Job) (any, error) {
	fut, err := p.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Shutdown stops accepting work and waits for queued jobs to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is a typed helper around Pool.Do.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := p.Do(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
