// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
)

// Task is a unit of work that can be scheduled on a [Pool].
//
// Implementations embed [TaskBase], which supplies everything except Run and
// keeps priority and status safe to read from any goroutine:
//
//	type compileJob struct {
//		asyncq.TaskBase
//		src string
//	}
//
//	func (j *compileJob) Run(ctx context.Context, workerID int) asyncq.Status {
//		...
//		return asyncq.Complete
//	}
//
// See [NewTask] for a function-based alternative.
type Task interface {
	// Run executes the task synchronously on the calling worker and returns
	// the task's new status: [Complete] or [Cancelled] to finish, or
	// [NotStarted] to be queued and run again later. Run must not block
	// indefinitely. The context is canceled when the pool is stopped.
	Run(ctx context.Context, workerID int) Status

	Priority() float64
	SetPriority(priority float64)
	Status() Status
	SetStatus(status Status)
	IsFinished() bool

	base() *TaskBase
}

// RunFunc is the signature of a function run by a [FuncTask].
type RunFunc func(ctx context.Context, workerID int) Status

// TaskBase holds the scheduling state shared by all tasks. The zero value has
// priority zero and status [NotStarted].
//
// Only the pool should call SetStatus on a task that has been enqueued.
type TaskBase struct {
	priority atomic.Uint64 // math.Float64bits
	status   atomic.Int32

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// Priority returns the task's current priority. Higher priorities run first.
func (b *TaskBase) Priority() float64 {
	return math.Float64frombits(b.priority.Load())
}

// SetPriority changes the task's priority. A change only affects a queued
// task once [Pool.ReprioritizeTask] or [Pool.ReprioritizeAllTasks] is called
// or the task is next re-queued.
//
// Panics if priority is NaN.
func (b *TaskBase) SetPriority(priority float64) {
	if math.IsNaN(priority) {
		panic("priority must not be NaN")
	}
	b.priority.Store(math.Float64bits(priority))
}

func (b *TaskBase) Status() Status {
	return Status(b.status.Load())
}

// SetStatus records the task's status. Once finished, a task stays finished:
// it may move between [Complete] and [Cancelled], but SetStatus panics if
// asked to make a finished task unfinished again.
func (b *TaskBase) SetStatus(status Status) {
	if !status.IsFinished() && b.IsFinished() {
		panic("finished task must not be reset")
	}
	b.status.Store(int32(status))
	if status.IsFinished() {
		b.mu.Lock()
		b.closeDoneLocked()
		b.mu.Unlock()
	}
}

func (b *TaskBase) IsFinished() bool {
	return b.Status().IsFinished()
}

// Done returns a channel that is closed once the task reaches a finished
// status. Since a finished task cannot be reset, the channel stays closed for
// good. Tasks that are dropped by [Pool.StopThreads] or removed with
// [Pool.RemoveTask] never finish.
func (b *TaskBase) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done == nil {
		b.done = make(chan struct{})
	}
	if b.Status().IsFinished() {
		b.closeDoneLocked()
	}
	return b.done
}

// Wait blocks until the task finishes or ctx is canceled, returning the
// task's final status or the context's error.
func (b *TaskBase) Wait(ctx context.Context) (Status, error) {
	select {
	case <-b.Done():
		return b.Status(), nil
	case <-ctx.Done():
		return b.Status(), ctx.Err()
	}
}

func (b *TaskBase) closeDoneLocked() {
	if b.closed {
		return
	}
	if b.done == nil {
		b.done = make(chan struct{})
	}
	close(b.done)
	b.closed = true
}

func (b *TaskBase) base() *TaskBase {
	return b
}

// FuncTask is a [Task] whose work is a [RunFunc].
type FuncTask struct {
	TaskBase
	fn RunFunc
}

// NewTask returns a task with the given priority that calls fn when run.
//
// Panics if fn is nil or priority is NaN.
func NewTask(priority float64, fn RunFunc) *FuncTask {
	if fn == nil {
		panic("run function must be non-nil")
	}
	t := &FuncTask{fn: fn}
	t.SetPriority(priority)
	return t
}

func (t *FuncTask) Run(ctx context.Context, workerID int) Status {
	return t.fn(ctx, workerID)
}
