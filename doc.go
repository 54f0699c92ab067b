// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package asyncq provides a fixed-size pool of worker goroutines that execute
// prioritized tasks drawn from a single shared queue.
//
// Higher priority tasks run first. A task may be enqueued with prerequisites,
// other tasks that must reach a finished state (see [Status.IsFinished])
// before it is allowed to run. A task that is popped while any of its
// prerequisites are still unfinished is not run; instead its own priority is
// lowered to the lowest priority among those prerequisites and it is put back
// into the queue behind them, so that a chain of dependencies runs from its
// first link rather than spinning on tasks that cannot run yet.
//
// The pool holds only weak references to prerequisites. A prerequisite that
// has been garbage collected can never finish, so it is treated as satisfied
// instead of blocking its dependents forever.
//
// All queue state is guarded by one mutex, which is what makes "nothing queued
// and nothing running" an atomically observable condition for
// [Pool.WaitForAllTasks].
//
// Tasks are run to completion. There is no preemption; a task that wants to be
// cancelable must check for that itself and return [Cancelled], and a task
// that wants to be called again later returns [NotStarted].
package asyncq
