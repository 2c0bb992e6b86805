// Package pool provides bounded FIFO admission queues for the external
// image and video tools.
package pool

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultImageCapacity = 8

// Task is a unit of work admitted by a Pool.
type Task func(ctx context.Context) error

// Pool runs at most Capacity tasks at a time. Waiting tasks are admitted in
// arrival order; completion order is unspecified.
type Pool struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted
	metrics  *Metrics

	running atomic.Int64
	queued  atomic.Int64
}

// New creates a pool. Capacity below 1 is raised to 1. metrics may be nil.
func New(name string, capacity int, metrics *Metrics) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		name:     name,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		metrics:  metrics,
	}
}

// Name returns the pool label used in metrics and logs.
func (p *Pool) Name() string { return p.name }

// Capacity returns the maximum number of concurrently running tasks.
func (p *Pool) Capacity() int { return int(p.capacity) }

// Running returns the number of tasks currently holding a slot.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Queued returns the number of tasks waiting for a slot.
func (p *Pool) Queued() int { return int(p.queued.Load()) }

// Do blocks until the task is admitted, runs it and releases the slot. The
// task's error, or a recovered panic, is returned only to this caller. If ctx
// ends while waiting the task is not run.
func (p *Pool) Do(ctx context.Context, task func(ctx context.Context) error) error {
	p.queued.Add(1)
	p.metrics.setQueued(p.name, p.queued.Load())
	err := p.sem.Acquire(ctx, 1)
	p.queued.Add(-1)
	p.metrics.setQueued(p.name, p.queued.Load())
	if err != nil {
		p.metrics.observe(p.name, "canceled")
		return err
	}
	defer p.sem.Release(1)

	p.running.Add(1)
	p.metrics.setRunning(p.name, p.running.Load())
	defer func() {
		p.running.Add(-1)
		p.metrics.setRunning(p.name, p.running.Load())
	}()

	err = run(ctx, task)
	if err != nil {
		p.metrics.observe(p.name, "error")
	} else {
		p.metrics.observe(p.name, "ok")
	}
	return err
}

// Submit is the asynchronous form of Do. The returned channel receives the
// task's result and is then closed.
func (p *Pool) Submit(ctx context.Context, task func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- p.Do(ctx, task)
	}()
	return done
}

func run(ctx context.Context, task func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// VideoCapacity derives the video pool size from the image pool size:
// a quarter, rounded, never less than one.
func VideoCapacity(imageCapacity int) int {
	n := int(math.Round(float64(imageCapacity) / 4))
	if n < 1 {
		return 1
	}
	return n
}
