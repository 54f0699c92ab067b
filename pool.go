// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"context"
	"math"
	"sync"

	"github.com/petenewcomb/asyncq-go/internal/state"
	"go.uber.org/zap"
)

// A Pool runs enqueued tasks on a fixed set of worker goroutines, highest
// priority first, holding each task back until its prerequisites finish.
//
// A Pool must be created with [NewPool] and should be shut down with
// [Pool.StopThreads] once it is no longer needed.
type Pool struct {
	config Config
	logger *zap.Logger

	// ctx is passed to Task.Run and canceled by StopThreads.
	ctx    context.Context
	cancel context.CancelFunc

	// mu guards everything below. The queue and the running count must only
	// change together under mu, so that "queue empty and nothing running" can
	// be observed atomically.
	mu       sync.Mutex
	workCond sync.Cond // signaled when work is queued or stop is requested
	doneCond sync.Cond // broadcast when the pool becomes idle
	queue    taskQueue
	running  state.RunningCounter
	stop     bool
	workers  []*worker
}

// Stats is a consistent snapshot of a pool's queue size and running task
// count.
type Stats struct {
	Queued  int
	Running int
}

// Idle reports whether nothing was queued or running.
func (s Stats) Idle() bool {
	return s.Queued == 0 && s.Running == 0
}

// NewPool creates a pool and starts its workers.
//
// Panics if config.NumThreads is negative.
func NewPool(config Config) *Pool {
	if config.NumThreads < 0 {
		panic("number of threads must not be negative")
	}
	config = config.withDefaults()
	p := &Pool{
		config: config,
		logger: config.Logger.With(zap.String("pool", config.Name)),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.workCond.L = &p.mu
	p.doneCond.L = &p.mu

	p.workers = make([]*worker, config.NumThreads)
	for id := range p.workers {
		p.workers[id] = p.startWorker(id)
	}
	p.logger.Debug("Pool started", zap.Int("workers", config.NumThreads))
	return p
}

// EnqueueTask adds a task to the queue. The task will not run until every
// prerequisite has finished or been garbage collected; the pool does not keep
// prerequisites alive.
//
// The task inherits the lowest of the priorities of its prerequisites: its own
// priority is lowered to that value if it is higher, and it is queued at the
// result. A task is therefore never scheduled ahead of work it is waiting on,
// and a chain of dependent tasks sinks to the priority of its first link.
//
// Panics if task or any prerequisite is nil, if task has already finished, or
// if the pool has been stopped.
func (p *Pool) EnqueueTask(task Task, prerequisites ...Task) {
	if task == nil {
		panic("task must be non-nil")
	}
	if task.IsFinished() {
		panic("task is already finished")
	}
	prereqs := makePrerequisites(prerequisites)
	limit := math.Inf(1)
	for _, pt := range prerequisites {
		limit = min(limit, pt.Priority())
	}

	p.mu.Lock()
	if p.stop {
		p.mu.Unlock()
		panic("task enqueued after StopThreads")
	}
	p.queue.Push(task, prereqs, inheritPriority(task, limit))
	p.mu.Unlock()

	p.workCond.Signal()
}

// EnqueueFunc wraps fn in a [FuncTask] with the given priority, enqueues it
// as with [Pool.EnqueueTask], and returns it.
func (p *Pool) EnqueueFunc(priority float64, fn RunFunc, prerequisites ...Task) *FuncTask {
	t := NewTask(priority, fn)
	p.EnqueueTask(t, prerequisites...)
	return t
}

// WaitForAllTasks blocks until no tasks are queued or running. Other
// goroutines may keep enqueueing tasks while it waits; it returns the first
// time the pool is observed idle. It also returns once [Pool.StopThreads] has
// dropped any remaining tasks.
//
// A pool without workers only becomes idle through calls to
// [Pool.ProcessTask] or [Pool.RemoveTask] made by other goroutines.
func (p *Pool) WaitForAllTasks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.idleLocked() {
		p.doneCond.Wait()
	}
}

// StopThreads stops the pool. Tasks that are running are allowed to return,
// but queued tasks are dropped without being run and the context passed to
// running tasks is canceled. StopThreads waits for all workers to exit.
//
// After StopThreads, calling [Pool.EnqueueTask] panics. Calling StopThreads
// again has no further effect.
//
// StopThreads must not be called from a task's Run method on a pool with
// workers: the worker running the task would wait for itself to exit. A pool
// created with zero threads has no workers to wait for, so its tasks may stop
// it.
func (p *Pool) StopThreads() {
	p.mu.Lock()
	p.stop = true
	workers := p.workers
	p.mu.Unlock()

	p.cancel()
	p.workCond.Broadcast()
	for _, w := range workers {
		<-w.done
	}

	p.mu.Lock()
	p.workers = nil
	dropped := p.queue.Clear()
	if p.idleLocked() {
		p.doneCond.Broadcast()
	}
	p.mu.Unlock()

	if len(workers) > 0 || dropped > 0 {
		p.logger.Debug("Pool stopped",
			zap.Int("workers", len(workers)),
			zap.Int("dropped_tasks", dropped))
	}
}

// RemoveTask removes a queued task without running it. Returns false if the
// task was not queued, for instance because it is running, has finished, or
// was never enqueued. If the task was enqueued more than once, only one entry
// is removed.
//
// Panics if task is nil.
func (p *Pool) RemoveTask(task Task) bool {
	if task == nil {
		panic("task must be non-nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.queue.Find(task)
	if !ok {
		return false
	}
	p.queue.Remove(e)
	if p.idleLocked() {
		p.doneCond.Broadcast()
	}
	return true
}

// ReprioritizeTask re-reads the priority of a queued task and moves it to the
// matching position after [TaskBase.SetPriority] has changed it. A task whose
// new priority is above that of a prerequisite it is still waiting on is
// lowered again the next time it is found blocked. Returns false if the task
// is not queued.
//
// Panics if task is nil.
func (p *Pool) ReprioritizeTask(task Task) bool {
	if task == nil {
		panic("task must be non-nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.queue.Find(task)
	if !ok {
		return false
	}
	if priority := task.Priority(); priority != e.priority {
		p.queue.Rekey(e, priority)
	}
	return true
}

// ReprioritizeAllTasks applies [Pool.ReprioritizeTask] to every queued task in
// a single pass and returns how many changed position. Entries whose priority
// did not change keep their place.
func (p *Pool) ReprioritizeAllTasks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.RekeyAll()
}

// QueuedPriority returns the priority under which a task is currently queued.
// It differs from the task's own priority only if that has been changed since
// the task was queued or last reprioritized. Returns false if the task is not
// queued.
func (p *Pool) QueuedPriority(task Task) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.queue.Find(task)
	if !ok {
		return 0, false
	}
	return e.priority, true
}

// QueueSize returns the number of queued tasks, including tasks waiting on
// prerequisites. The value may be stale by the time it is used.
func (p *Pool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// RunningTaskCount returns the number of tasks currently checked out by
// workers. The value may be stale by the time it is used.
func (p *Pool) RunningTaskCount() int {
	return p.running.Load()
}

// Stats returns the queue size and running task count as of the same instant.
func (p *Pool) Stats() Stats {
	stats, _ := p.statsAndStopped()
	return stats
}

func (p *Pool) idleLocked() bool {
	return p.queue.Len() == 0 && p.running.IsZero()
}
