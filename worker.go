// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/pprof"

	"github.com/petenewcomb/asyncq-go/internal/affinity"
	"go.uber.org/zap"
)

type worker struct {
	id   int
	name string
	done chan struct{}
}

func (p *Pool) startWorker(id int) *worker {
	w := &worker{
		id:   id,
		name: fmt.Sprintf("%s worker %d", p.config.Name, id),
		done: make(chan struct{}),
	}
	go p.runWorker(w)
	return w
}

func (p *Pool) runWorker(w *worker) {
	defer close(w.done)
	logger := p.logger.With(zap.String("worker", w.name), zap.Int("worker_id", w.id))

	if mask := p.config.AllowedCoreMask; mask != 0 {
		// Deliberately never unlocked: the pinned thread is discarded when
		// this goroutine exits instead of being returned to the scheduler.
		runtime.LockOSThread()
		if previous, err := affinity.Pin(w.id, mask); err != nil {
			logger.Warn("Failed to pin worker to core",
				zap.Uint64("allowed_mask", mask),
				zap.Error(err))
		} else {
			logger.Debug("Pinned worker to core",
				zap.Uint64("allowed_mask", mask),
				zap.Uint64("previous_mask", previous))
		}
	}

	if f := p.config.OnThreadStarted; f != nil {
		f(w.id)
	}
	logger.Debug("Worker started")

	pprof.Do(p.ctx, pprof.Labels("asyncq.worker", w.name), func(context.Context) {
		for p.ProcessTask(w.id, true) {
		}
	})

	logger.Debug("Worker exiting")
	if f := p.config.OnThreadExiting; f != nil {
		f(w.id)
	}
}

// ProcessTask takes the highest priority task from the queue and, if its
// prerequisites have all finished, runs it on the calling goroutine. A task
// that is not run, or that asks to be run again by returning [NotStarted], is
// put back into the queue. A task put back because of an unfinished
// prerequisite first has its priority lowered to that of the prerequisite, if
// it is higher, so that the prerequisite is reached first.
//
// If wait is true, ProcessTask blocks until a task is available or the pool is
// stopped. It returns false if the pool has been stopped or, when not waiting,
// if the queue was empty; otherwise it returns true.
//
// Pool workers call ProcessTask in a loop. Other goroutines may call it to
// help drain the queue, and it is the only way tasks run in a pool created
// with zero threads. workerID is passed through to [Task.Run].
func (p *Pool) ProcessTask(workerID int, wait bool) bool {
	p.mu.Lock()
	if wait {
		for !p.stop && p.queue.Len() == 0 {
			p.workCond.Wait()
		}
	}
	if p.stop || p.queue.Len() == 0 {
		p.mu.Unlock()
		return false
	}
	p.running.Increment()
	e, _ := p.queue.PopFront()
	p.mu.Unlock()

	// A task enqueued more than once may have been finished by another entry.
	finished := e.task.IsFinished()
	ready, minPrereqPriority := false, math.Inf(1)
	if !finished {
		ready, minPrereqPriority = checkPrerequisites(e.prereqs)
		if ready {
			p.runTask(e.task, workerID)
			finished = e.task.IsFinished()
		}
	}

	p.mu.Lock()
	p.running.Decrement()
	requeued := !finished && !p.stop
	if requeued {
		p.queue.Push(e.task, e.prereqs, inheritPriority(e.task, minPrereqPriority))
	} else if p.idleLocked() {
		p.doneCond.Broadcast()
	}
	p.mu.Unlock()

	if requeued {
		// Another worker may be able to take it, particularly if this one
		// is about to go idle.
		p.workCond.Signal()
		if !ready {
			runtime.Gosched()
		}
	}
	return true
}

func (p *Pool) runTask(task Task, workerID int) {
	task.SetStatus(Running)

	returned := false
	defer func() {
		if !returned {
			// Not recovered: a panicking task takes the process down.
			p.logger.Error("Task panicked",
				zap.Int("worker_id", workerID),
				zap.Float64("priority", task.Priority()))
		}
	}()
	status := task.Run(p.ctx, workerID)
	returned = true

	if status != NotStarted && !status.IsFinished() {
		p.logger.Error("Task returned a non-terminal status; it will be run again",
			zap.Int("worker_id", workerID),
			zap.Stringer("status", status),
			zap.Float64("priority", task.Priority()))
		status = NotStarted
	}
	task.SetStatus(status)
}
