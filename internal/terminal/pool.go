package terminal

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of blocking PTY calls (writes, resizes, closes) in
// flight across every terminal in the process.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool with size slots. A non-positive size uses
// GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Do runs fn once a slot is free. It returns ctx.Err() if ctx ends first.
// A call still blocked in fn when ctx ends gives its slot back and returns
// ctx.Err(); fn keeps running on its own goroutine until it returns.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	var once sync.Once
	release := func() { once.Do(func() { p.sem.Release(1) }) }

	done := make(chan error, 1)
	go func() {
		err := fn()
		release()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		release()
		return ctx.Err()
	}
}
