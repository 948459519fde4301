// Package pool provides a fixed-capacity worker pool for long-running tasks.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrTaskPanic  = errors.New("task panicked")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on at most MaxWorkers goroutines. Tasks beyond
// capacity wait in a FIFO queue until a worker frees up; they are never
// rejected while the pool is open.
type Pool struct {
	maxWorkers int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []taskWrapper
	closed  bool
	workers int
	wg      sync.WaitGroup

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	panicHandler func(any)
	errorHandler func(error)
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// Config configures the pool.
type Config struct {
	MaxWorkers   int         `yaml:"max_workers"`
	PanicHandler func(any)   `yaml:"-"`
	ErrorHandler func(error) `yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 32,
	}
}

// New creates a pool. Workers are spawned lazily as tasks arrive.
func New(config Config) *Pool {
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	p := &Pool{
		maxWorkers:   config.MaxWorkers,
		panicHandler: config.PanicHandler,
		errorHandler: config.ErrorHandler,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Submit queues task for execution with ctx.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	p.queue = append(p.queue, taskWrapper{task: task, ctx: ctx})

	if p.workers < p.maxWorkers {
		p.workers++
		p.wg.Add(1)
		go p.worker()
	} else {
		p.cond.Signal()
	}
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.workers--
			p.mu.Unlock()
			return
		}
		wrapper := p.queue[0]
		p.queue[0] = taskWrapper{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.active.Add(1)
		err := p.execute(wrapper)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			if p.errorHandler != nil {
				p.errorHandler(err)
			}
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *Pool) execute(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()

	return wrapper.task(wrapper.ctx)
}

// Close stops accepting tasks and waits until every queued and running
// task has returned. Queued tasks still run; callers cancel their context
// first when they want them to exit promptly.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers, queued := p.workers, len(p.queue)
	p.mu.Unlock()

	return Stats{
		Capacity:  p.maxWorkers,
		Workers:   workers,
		Active:    int(p.active.Load()),
		Queued:    queued,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Capacity  int   `json:"capacity"`
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
