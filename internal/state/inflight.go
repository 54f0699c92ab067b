// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package state

import (
	"sync/atomic"
)

// RunningCounter counts tasks that have been popped from a queue but not yet
// returned to it or retired. Callers serialize Increment and Decrement with
// the lock that guards the queue; the value is atomic only so that Load may
// be called without that lock.
type RunningCounter struct {
	v atomic.Int64
}

func (c *RunningCounter) Increment() {
	c.v.Add(1)
}

// Decrement returns true if the counter reached zero.
func (c *RunningCounter) Decrement() bool {
	newValue := c.v.Add(-1)
	if newValue < 0 {
		panic("there were no tasks running")
	}
	return newValue == 0
}

func (c *RunningCounter) Load() int {
	return int(c.v.Load())
}

func (c *RunningCounter) IsZero() bool {
	return c.v.Load() == 0
}
