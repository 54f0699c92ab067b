// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

type constError string

func (e constError) Error() string {
	return string(e)
}

// ErrCycle is returned by [Pool.EnqueueBatch] when the prerequisites of the
// tasks in a [Batch] form a cycle.
const ErrCycle = constError("prerequisite cycle")

// ErrStopped is returned by [Pool.WaitForAllTasksContext] when the pool was
// stopped before it became idle.
const ErrStopped = constError("pool stopped")

const errNotIdle = constError("pool not idle")
