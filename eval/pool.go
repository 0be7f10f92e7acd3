package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
)

// Pool is a fixed set of thread-pinned workers.
//
// Evaluators are allowed to keep thread-local state for the duration
// of a single call, so every task submitted through Do runs start to
// finish on one worker goroutine locked to one OS thread.
type Pool struct {
	tasks chan task
	wg    sync.WaitGroup
	once  sync.Once
}

type task struct {
	fn  func() (json.RawMessage, error)
	res chan result
}

type result struct {
	v   json.RawMessage
	err error
}

// NewPool returns a Pool of n workers; n below 1 is clamped to 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{tasks: make(chan task)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	runtime.LockOSThread()
	for t := range p.tasks {
		t.res <- run(t.fn)
	}
}

// Run invokes fn, translating a panic into an error so one bad
// evaluation cannot take down the process.
func run(fn func() (json.RawMessage, error)) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("eval: panic during evaluation: %v", r)}
		}
	}()
	v, err := fn()
	return result{v: v, err: err}
}

// Do runs fn on one of the pool's workers and returns its result.
// Submission honors ctx; once a worker has picked the task up it runs
// to completion.
func (p *Pool) Do(ctx context.Context, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	t := task{fn: fn, res: make(chan result, 1)}
	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-t.res
	return r.v, r.err
}

// Close stops the workers. Do must not be called after Close.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}
