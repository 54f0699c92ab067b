// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	asyncq "github.com/petenewcomb/asyncq-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type simTask struct {
	asyncq.TaskBase
	plan     *Task
	prereqs  []*simTask
	runsLeft int
	recorder *recorder
}

func (s *simTask) Run(ctx context.Context, workerID int) asyncq.Status {
	s.recorder.record(s)
	s.runsLeft--
	switch {
	case s.runsLeft > 0:
		return asyncq.NotStarted
	case s.plan.Cancel:
		return asyncq.Cancelled
	default:
		return asyncq.Complete
	}
}

type recorder struct {
	mu         sync.Mutex
	runs       []int
	violations []string
}

func (r *recorder) record(s *simTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s.plan.ID)
	if status := s.Status(); status != asyncq.Running {
		r.violations = append(r.violations, fmt.Sprintf("%v ran with status %v", s.plan, status))
	}
	for _, p := range s.prereqs {
		if !p.IsFinished() {
			r.violations = append(r.violations, fmt.Sprintf("%v ran before prerequisite %v finished", s.plan, p.plan))
		}
	}
}

func newSimTasks(plan *Plan, r *recorder) []*simTask {
	byID := plan.ByID()
	tasks := make([]*simTask, len(byID))
	for id, p := range byID {
		tasks[id] = &simTask{plan: p, runsLeft: p.Runs, recorder: r}
		tasks[id].SetPriority(p.Priority)
	}
	for _, s := range tasks {
		for _, id := range s.plan.Prereqs {
			s.prereqs = append(s.prereqs, tasks[id])
		}
	}
	return tasks
}

func enqueue(pool *asyncq.Pool, s *simTask) {
	prereqs := make([]asyncq.Task, len(s.prereqs))
	for i, p := range s.prereqs {
		prereqs[i] = p
	}
	pool.EnqueueTask(s, prereqs...)
}

// Run drives a pool with no workers through the plan one step at a time, in
// lockstep with [Estimate], and returns the IDs of the tasks run in order.
func Run(t require.TestingT, plan *Plan) []int {
	chk := require.New(t)
	r := &recorder{}
	tasks := newSimTasks(plan, r)

	pool := asyncq.NewPool(asyncq.Config{Name: "sim", Logger: zap.NewNop()})
	defer pool.StopThreads()

	var arrivals deque.Deque[*simTask]
	for _, p := range plan.Tasks {
		arrivals.PushBack(tasks[p.ID])
	}

	for step := 0; ; step++ {
		chk.Less(step, plan.Config.MaxSteps, "pool did not converge")
		for arrivals.Len() > 0 && arrivals.Front().plan.Arrival <= step {
			enqueue(pool, arrivals.PopFront())
		}
		if !pool.ProcessTask(0, false) && arrivals.Len() == 0 {
			break
		}
	}

	chk.Empty(r.violations)
	chk.True(pool.Stats().Idle())
	for _, s := range tasks {
		chk.True(s.IsFinished(), "%v did not finish", s.plan)
	}
	return r.runs
}

// RunConcurrent executes the plan on a pool with the given number of workers,
// enqueueing every task up front, and checks that no task ran before its
// prerequisites finished.
func RunConcurrent(t require.TestingT, plan *Plan, workers int) {
	chk := require.New(t)
	r := &recorder{}
	tasks := newSimTasks(plan, r)

	pool := asyncq.NewPool(asyncq.Config{Name: "sim", NumThreads: workers, Logger: zap.NewNop()})
	defer pool.StopThreads()

	for _, p := range plan.Tasks {
		enqueue(pool, tasks[p.ID])
	}
	ctx, cancel := context.WithTimeout(context.Background(), plan.Config.Timeout)
	defer cancel()
	chk.NoError(pool.WaitForAllTasksContext(ctx), "pool did not become idle: %+v\n%v", pool.Stats(), plan)

	chk.True(pool.Stats().Idle())
	r.mu.Lock()
	defer r.mu.Unlock()
	chk.Empty(r.violations)
	chk.Len(r.runs, plan.TotalRuns())
	for _, s := range tasks {
		chk.True(s.IsFinished(), "%v did not finish", s.plan)
	}
}
