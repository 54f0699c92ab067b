// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sim

import (
	"cmp"
	"math"

	"github.com/addrummond/heap"
	"github.com/gammazero/deque"
	"github.com/stretchr/testify/require"
)

// Estimate predicts the sequence of task IDs, one per Run call, produced by
// driving a pool through the plan one step at a time. Each step first enqueues
// the tasks arriving at that step and then processes at most one queue entry.
//
// Task priorities change as the pool passes them down dependency chains, so
// the model keeps its own copy of each.
func Estimate(t require.TestingT, plan *Plan) []int {
	chk := require.New(t)
	tasks := plan.ByID()
	runsLeft := make([]int, len(tasks))
	finished := make([]bool, len(tasks))
	priorities := make([]float64, len(tasks))
	for _, task := range tasks {
		runsLeft[task.ID] = task.Runs
		priorities[task.ID] = task.Priority
	}
	inherit := func(task *Task, limit float64) float64 {
		priorities[task.ID] = min(priorities[task.ID], limit)
		return priorities[task.ID]
	}

	var queue heap.Heap[modelEntry, heap.Min]
	var seq uint64
	push := func(task *Task, priority float64) {
		heap.PushOrderable(&queue, modelEntry{Task: task, Priority: priority, Seq: seq})
		seq++
	}

	var arrivals deque.Deque[*Task]
	for _, task := range plan.Tasks {
		arrivals.PushBack(task)
	}

	var runs []int
	for step := 0; ; step++ {
		chk.Less(step, plan.Config.MaxSteps, "model did not converge")

		for arrivals.Len() > 0 && arrivals.Front().Arrival <= step {
			task := arrivals.PopFront()
			limit := math.Inf(1)
			for _, id := range task.Prereqs {
				limit = min(limit, priorities[id])
			}
			push(task, inherit(task, limit))
		}

		entry, ok := heap.PopOrderable(&queue)
		if !ok {
			if arrivals.Len() == 0 {
				break
			}
			continue
		}

		task := entry.Task
		minUnmet := math.Inf(1)
		for _, id := range task.Prereqs {
			if !finished[id] {
				minUnmet = min(minUnmet, priorities[id])
			}
		}
		if math.IsInf(minUnmet, 1) {
			runs = append(runs, task.ID)
			runsLeft[task.ID]--
			finished[task.ID] = runsLeft[task.ID] == 0
		}
		if !finished[task.ID] {
			push(task, inherit(task, minUnmet))
		}
	}

	chk.Len(runs, plan.TotalRuns())
	return runs
}

type modelEntry struct {
	Task     *Task
	Priority float64
	Seq      uint64
}

// Cmp orders higher priorities first, then earlier insertions.
func (a *modelEntry) Cmp(b *modelEntry) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}
