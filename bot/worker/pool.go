// Package worker runs background tasks on a fixed set of goroutines.
// The queue managers hand their snapshot writes to a shared pool so a
// slow disk never stalls a guild's lock, and shutdown can wait for the
// last write to land.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit once shutdown has begun.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool executes submitted tasks on size goroutines. The task queue is
// buffered, so Submit only blocks when every worker is busy and the
// buffer is full.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	// mu orders submits against the close: senders hold the read lock,
	// Shutdown closes the channel under the write lock. A send can
	// therefore never hit a closed channel.
	mu     sync.RWMutex
	closed bool
	size   int
}

// New starts a pool with the given worker count. Sizes below one are
// raised to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		tasks: make(chan func(), size*8),
		size:  size,
	}

	p.wg.Add(size)
	for range size {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		if task != nil {
			task()
		}
	}
}

// Submit enqueues a task. Returns ErrPoolClosed once shutdown has
// begun; the caller decides whether to run the task inline instead.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

// SubmitWait enqueues a task and blocks until it has run, returning the
// task's error.
func (p *Pool) SubmitWait(task func() error) error {
	return p.SubmitWaitContext(context.Background(), task)
}

// SubmitWaitContext is SubmitWait with a deadline: if ctx expires
// before the task completes, the ctx error is returned and the task
// keeps running to completion on its worker.
func (p *Pool) SubmitWaitContext(ctx context.Context, task func() error) error {
	if task == nil {
		return nil
	}

	result := make(chan error, 1)
	if err := p.Submit(func() { result <- task() }); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain,
// bounded by ctx. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}
