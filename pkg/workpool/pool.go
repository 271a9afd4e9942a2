// Package workpool runs suite work on a fixed pool of workers.
//
// Work submitted via Submit returns a Future carrying exactly one Result.
// Workers recover from panics and report them as errors, so a misbehaving
// work function can never take the pool down. Close drains in-flight work
// before returning and is idempotent.
package workpool

import (
	"context"
	"fmt"
	"sync"
)

// Work is a cancellable unit of work.
type Work[T any] func(ctx context.Context) (T, error)

// Result carries the outcome of one work unit.
type Result[T any] struct {
	Data T
	Err  error
}

// Future is a pending result. C yields exactly one value; Stop cancels the
// work's context.
type Future[T any] struct {
	c      chan T
	cancel context.CancelFunc
}

func (f *Future[T]) C() chan T { return f.c }

func (f *Future[T]) Stop() { f.cancel() }

type queue[T any] []T

func (q *queue[T]) Len() int { return len(*q) }

func (q *queue[T]) Pop() T {
	old := *q
	x := old[0]
	*q = old[1:]
	return x
}

func (q *queue[T]) Push(t T) {
	*q = append(*q, t)
}

type request struct {
	fn  Work[any]
	c   chan Result[any]
	ctx context.Context
}

type worker struct {
	done chan any
	wg   *sync.WaitGroup
}

func (w worker) run(r request) {
	defer func() {
		if rec := recover(); rec != nil {
			r.c <- Result[any]{Err: fmt.Errorf("worker panicked: %v", rec)}
		}
		w.done <- struct{}{}
		w.wg.Done()
	}()

	v, err := r.fn(r.ctx)
	r.c <- Result[any]{Data: v, Err: err}
}

// Pool dispatches queued work to idle workers through a single event loop.
type Pool struct {
	workers    *queue[worker]
	backlog    *queue[request]
	close      chan any
	done       chan any
	work       chan request
	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

// New creates a pool of size workers. Size caps how many suite work units
// run concurrently.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	done := make(chan any, size)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers:    &queue[worker]{},
		backlog:    &queue[request]{},
		close:      make(chan any),
		done:       done,
		work:       make(chan request),
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	for range size {
		p.workers.Push(worker{done: done, wg: &p.wg})
	}
	go p.run()
	return p
}

// Submit queues work and returns its future. After Close the future resolves
// immediately with context.Canceled.
func (p *Pool) Submit(w Work[any]) *Future[Result[any]] {
	c := make(chan Result[any], 1)
	ctx, cancel := context.WithCancel(p.mainCtx)

	select {
	case <-p.mainCtx.Done():
		c <- Result[any]{Err: context.Canceled}
	case p.work <- request{w, c, ctx}:
	}

	return &Future[Result[any]]{c: c, cancel: cancel}
}

// Close cancels outstanding contexts and waits for in-flight work.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mainCancel()
		p.close <- struct{}{}
		<-p.done
	})
}

func (p *Pool) run() {
	defer close(p.done)
	for {
		select {
		case w := <-p.work:
			p.backlog.Push(w)
			p.dispatch()
		case <-p.done:
			p.workers.Push(worker{done: p.done, wg: &p.wg})
			p.dispatch()
		case <-p.close:
			p.wg.Wait()
			return
		}
	}
}

// dispatch pairs idle workers with backlog until one side runs out.
func (p *Pool) dispatch() {
	for p.workers.Len() > 0 && p.backlog.Len() > 0 {
		r := p.backlog.Pop()
		w := p.workers.Pop()
		p.wg.Add(1)
		go w.run(r)
	}
}
