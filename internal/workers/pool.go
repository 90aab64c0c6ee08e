// Package workers provides a fixed-size task pool used by the
// validation layer to run many simulations concurrently.
package workers

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Task is a unit of work. The context is the pool's lifetime context;
// tasks should stop early when it is cancelled.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of goroutines. Submit after Drain
// or Stop panics on the closed channel, so the producer must finish
// submitting before draining.
type Pool struct {
	logger *zap.Logger
	size   int
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a pool with the given number of workers. A size at or
// below zero defaults to the CPU count.
func NewPool(logger *zap.Logger, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger: logger,
		size:   size,
		tasks:  make(chan Task, size*2),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a task, blocking when the queue is full.
func (p *Pool) Submit(t Task) {
	p.tasks <- t
}

// Drain closes the queue and waits for all submitted tasks to finish.
func (p *Pool) Drain() {
	close(p.tasks)
	p.wg.Wait()
	p.cancel()
}

// Stop cancels the pool context, closes the queue, and waits. Queued
// tasks still run but see a cancelled context.
func (p *Pool) Stop() {
	p.cancel()
	close(p.tasks)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked",
				zap.Int("worker", id),
				zap.Any("panic", r),
			)
		}
	}()
	task(p.ctx)
}
