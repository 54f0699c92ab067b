// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq

import (
	"math"
	"weak"
)

// prerequisite is a weak reference to a task that must finish before another
// may run. It does not keep the referenced task alive.
type prerequisite weak.Pointer[TaskBase]

func makePrerequisites(tasks []Task) []prerequisite {
	if len(tasks) == 0 {
		return nil
	}
	prereqs := make([]prerequisite, 0, len(tasks))
	for _, t := range tasks {
		if t == nil {
			panic("prerequisite must be non-nil")
		}
		prereqs = append(prereqs, prerequisite(weak.Make(t.base())))
	}
	return prereqs
}

// resolve returns the referenced task's state, or nil if it has been garbage
// collected.
func (p prerequisite) resolve() *TaskBase {
	return weak.Pointer[TaskBase](p).Value()
}

// inheritPriority lowers a task's priority to limit if limit is lower, and
// returns the task's resulting priority. A task never gains priority this way.
func inheritPriority(task Task, limit float64) float64 {
	if priority := task.Priority(); priority <= limit {
		return priority
	}
	task.SetPriority(limit)
	return limit
}

// checkPrerequisites reports whether every prerequisite is met, meaning dead
// or finished, along with the minimum priority among the unmet ones (+Inf if
// there are none).
func checkPrerequisites(prereqs []prerequisite) (bool, float64) {
	met := true
	minPriority := math.Inf(1)
	for _, p := range prereqs {
		b := p.resolve()
		if b == nil || b.IsFinished() {
			continue
		}
		met = false
		minPriority = min(minPriority, b.Priority())
	}
	return met, minPriority
}
