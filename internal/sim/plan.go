// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sim

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"pgregory.net/rapid"
)

type Plan struct {
	Config *Config
	// Tasks in arrival order, ties broken by ID.
	Tasks []*Task
}

type Task struct {
	ID       int
	Priority float64
	Runs     int
	Cancel   bool  // finish as Cancelled instead of Complete
	Prereqs  []int // IDs of earlier tasks
	Arrival  int
}

func (t *Task) String() string {
	return fmt.Sprintf("Task#%d", t.ID)
}

// NewPlan draws a random acyclic task graph. Prerequisites always refer to
// tasks with lower IDs, but arrival steps are drawn independently, so a task
// may be enqueued before its prerequisites are.
func NewPlan(t *rapid.T, config *Config) *Plan {
	plan := &Plan{Config: config}
	count := rapid.IntRange(1, config.MaxTasks).Draw(t, "TaskCount")
	for id := range count {
		name := fmt.Sprintf("Task#%d", id)
		task := &Task{
			ID:       id,
			Priority: float64(rapid.IntRange(0, config.PriorityLevels-1).Draw(t, name+".Priority")),
			Runs:     rapid.IntRange(1, config.MaxRuns).Draw(t, name+".Runs"),
			Cancel:   rapid.Bool().Draw(t, name+".Cancel"),
			Arrival:  rapid.IntRange(0, config.MaxArrival).Draw(t, name+".Arrival"),
		}
		if id > 0 {
			n := rapid.IntRange(0, min(id, config.MaxPrereqs)).Draw(t, name+".PrereqCount")
			task.Prereqs = rapid.SliceOfNDistinct(rapid.IntRange(0, id-1), n, n, rapid.ID[int]).Draw(t, name+".Prereqs")
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	slices.SortStableFunc(plan.Tasks, func(a, b *Task) int {
		return cmp.Compare(a.Arrival, b.Arrival)
	})
	return plan
}

// ByID returns the plan's tasks indexed by ID.
func (p *Plan) ByID() []*Task {
	tasks := make([]*Task, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks[t.ID] = t
	}
	return tasks
}

// TotalRuns is the number of Run calls needed to finish every task.
func (p *Plan) TotalRuns() int {
	n := 0
	for _, t := range p.Tasks {
		n += t.Runs
	}
	return n
}

func (p *Plan) String() string {
	var b strings.Builder
	for _, t := range p.Tasks {
		fmt.Fprintf(&b, "%v p=%v runs=%d arrival=%d prereqs=%v\n",
			t, t.Priority, t.Runs, t.Arrival, t.Prereqs)
	}
	return b.String()
}
