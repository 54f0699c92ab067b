// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package asyncq_test

import (
	"context"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	asyncq "github.com/petenewcomb/asyncq-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

func complete(context.Context, int) asyncq.Status { return asyncq.Complete }

const idleTimeout = 10 * time.Second

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// waitForAllTasks calls WaitForAllTasks but fails the test, instead of hanging
// it, if the pool does not become idle in time.
func waitForAllTasks(t fataler, pool *asyncq.Pool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.WaitForAllTasks()
	}()
	select {
	case <-done:
	case <-time.After(idleTimeout):
		t.Fatalf("pool did not become idle within %v: %+v", idleTimeout, pool.Stats())
	}
}

func newPool(t testing.TB, threads int) *asyncq.Pool {
	pool := asyncq.NewPool(asyncq.Config{
		Name:       t.Name(),
		NumThreads: threads,
		Logger:     zap.NewNop(),
	})
	t.Cleanup(pool.StopThreads)
	return pool
}

// occupy blocks a worker of the pool until the returned function is called.
func occupy(pool *asyncq.Pool) (release func()) {
	started := make(chan struct{})
	released := make(chan struct{})
	pool.EnqueueFunc(math.Inf(1), func(context.Context, int) asyncq.Status {
		close(started)
		<-released
		return asyncq.Complete
	})
	<-started
	return func() { close(released) }
}

// drain processes tasks on the calling goroutine until the queue is empty.
func drain(pool *asyncq.Pool) int {
	n := 0
	for pool.ProcessTask(0, false) {
		n++
	}
	return n
}

type orderLog struct {
	mu    sync.Mutex
	order []float64
}

func (l *orderLog) task(priority float64) *asyncq.FuncTask {
	return asyncq.NewTask(priority, func(context.Context, int) asyncq.Status {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.order = append(l.order, priority)
		return asyncq.Complete
	})
}

func (l *orderLog) get() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.order)
}

func TestPriorityOrderSingleWorker(t *testing.T) {
	pool := newPool(t, 1)
	release := occupy(pool)

	var log orderLog
	for _, priority := range []float64{5, 1, 10, 3} {
		pool.EnqueueTask(log.task(priority))
	}
	release()
	waitForAllTasks(t, pool)

	require.Equal(t, []float64{10, 5, 3, 1}, log.get())
}

func TestPriorityOrderProperty(t *testing.T) {
	pool := newPool(t, 1)
	rapid.Check(t, func(t *rapid.T) {
		priorities := rapid.SliceOfDistinct(rapid.Float64Range(-100, 100), rapid.ID[float64]).Draw(t, "priorities")

		release := occupy(pool)
		var log orderLog
		for _, priority := range priorities {
			pool.EnqueueTask(log.task(priority))
		}
		release()
		waitForAllTasks(t, pool)

		order := log.get()
		require.Len(t, order, len(priorities))
		require.True(t, slices.IsSortedFunc(order, func(a, b float64) int {
			return -cmpFloat(a, b)
		}), "not in descending priority order: %v", order)
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestDependencyGating(t *testing.T) {
	pool := newPool(t, 4)
	chk := require.New(t)

	for range 50 {
		a := asyncq.NewTask(0, func(context.Context, int) asyncq.Status {
			time.Sleep(100 * time.Microsecond)
			return asyncq.Complete
		})
		var aFinishedWhenBRan atomic.Bool
		b := asyncq.NewTask(10, func(context.Context, int) asyncq.Status {
			aFinishedWhenBRan.Store(a.IsFinished())
			return asyncq.Complete
		})
		pool.EnqueueTask(b, a)
		pool.EnqueueTask(a)
		waitForAllTasks(t, pool)

		chk.True(b.IsFinished())
		chk.True(aFinishedWhenBRan.Load())
	}
}

func TestPriorityInheritance(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	a := asyncq.NewTask(1, complete)
	b := asyncq.NewTask(5, complete)
	pool.EnqueueTask(b, a)

	priority, ok := pool.QueuedPriority(b)
	chk.True(ok)
	chk.Equal(1.0, priority)
	chk.Equal(1.0, b.Priority())

	// a is not queued, so b is popped, found blocked, and re-queued at a's
	// priority.
	chk.True(pool.ProcessTask(0, false))
	chk.Equal(asyncq.NotStarted, b.Status())
	priority, _ = pool.QueuedPriority(b)
	chk.Equal(1.0, priority)

	// b follows a down the next time it is found blocked.
	a.SetPriority(0)
	chk.True(pool.ProcessTask(0, false))
	priority, _ = pool.QueuedPriority(b)
	chk.Equal(0.0, priority)
	chk.Equal(0.0, b.Priority())

	// Reprioritizing re-reads the task's own priority.
	b.SetPriority(5)
	chk.True(pool.ReprioritizeTask(b))
	priority, _ = pool.QueuedPriority(b)
	chk.Equal(5.0, priority)

	pool.EnqueueTask(a)
	chk.Equal(3, drain(pool)) // b blocked, a, b
	chk.True(a.IsFinished())
	chk.True(b.IsFinished())
	chk.Equal(0.0, b.Priority())
}

func TestPrerequisiteChainDrainsFromRoot(t *testing.T) {
	for _, dependentsFirst := range []bool{false, true} {
		pool := newPool(t, 0)
		chk := require.New(t)

		var order []int
		tasks := make([]*asyncq.FuncTask, 3)
		for i := range tasks {
			tasks[i] = asyncq.NewTask(float64(i), func(context.Context, int) asyncq.Status {
				order = append(order, i)
				return asyncq.Complete
			})
		}
		enqueue := func(i int) {
			if i == 0 {
				pool.EnqueueTask(tasks[0])
			} else {
				pool.EnqueueTask(tasks[i], tasks[i-1])
			}
		}
		if dependentsFirst {
			for i := len(tasks) - 1; i >= 0; i-- {
				enqueue(i)
			}
		} else {
			for i := range tasks {
				enqueue(i)
			}
		}

		for step := 0; pool.ProcessTask(0, false); step++ {
			chk.Less(step, 100, "chain did not finish: %+v", pool.Stats())
		}
		chk.Equal([]int{0, 1, 2}, order, "dependents first: %v", dependentsFirst)
		for _, task := range tasks {
			chk.Equal(0.0, task.Priority())
		}
	}
}

func TestPrerequisiteChainOnWorkers(t *testing.T) {
	pool := newPool(t, 4)
	chk := require.New(t)

	// Later links outrank earlier ones and are enqueued first.
	const n = 200
	var ran atomic.Int32
	tasks := make([]*asyncq.FuncTask, n)
	for i := range tasks {
		tasks[i] = asyncq.NewTask(float64(i), func(context.Context, int) asyncq.Status {
			ran.Add(1)
			return asyncq.Complete
		})
	}
	for i := n - 1; i > 0; i-- {
		pool.EnqueueTask(tasks[i], tasks[i-1])
	}
	pool.EnqueueTask(tasks[0])
	waitForAllTasks(t, pool)

	chk.Equal(int32(n), ran.Load())
}

func TestTaskEnqueuedTwiceRunsOnce(t *testing.T) {
	pool := newPool(t, 0)
	runs := 0
	task := asyncq.NewTask(0, func(context.Context, int) asyncq.Status {
		runs++
		return asyncq.Complete
	})
	pool.EnqueueTask(task)
	pool.EnqueueTask(task)
	require.Equal(t, 2, drain(pool))
	require.Equal(t, 1, runs)
	require.True(t, pool.Stats().Idle())
}

func TestStopFromTaskOnCallerDrivenPool(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	var ran atomic.Int32
	pool.EnqueueFunc(10, func(context.Context, int) asyncq.Status {
		pool.StopThreads()
		return asyncq.NotStarted
	})
	for range 3 {
		pool.EnqueueFunc(0, func(context.Context, int) asyncq.Status {
			ran.Add(1)
			return asyncq.Complete
		})
	}

	chk.True(pool.ProcessTask(0, false))
	chk.False(pool.ProcessTask(0, false))
	chk.Zero(ran.Load())
	chk.True(pool.Stats().Idle())
	waitForAllTasks(t, pool)
}

func TestPrerequisiteTakingSeveralRuns(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	ticks := 0
	a := asyncq.NewTask(1, func(context.Context, int) asyncq.Status {
		ticks++
		if ticks < 3 {
			return asyncq.NotStarted
		}
		return asyncq.Complete
	})
	var aStatusWhenBRan asyncq.Status
	b := asyncq.NewTask(1, func(context.Context, int) asyncq.Status {
		aStatusWhenBRan = a.Status()
		return asyncq.Complete
	})
	pool.EnqueueTask(a)
	pool.EnqueueTask(b, a)

	for pool.ProcessTask(0, false) {
		if !b.IsFinished() {
			priority, ok := pool.QueuedPriority(b)
			chk.True(ok)
			chk.Equal(1.0, priority)
		}
	}
	chk.Equal(3, ticks)
	chk.Equal(asyncq.Complete, aStatusWhenBRan)
	chk.True(b.IsFinished())
}

func TestPrerequisiteTakingSeveralRunsOnWorkers(t *testing.T) {
	pool := newPool(t, 3)

	var ticks atomic.Int32
	a := asyncq.NewTask(1, func(context.Context, int) asyncq.Status {
		if ticks.Add(1) < 3 {
			return asyncq.NotStarted
		}
		return asyncq.Complete
	})
	var aStatusWhenBRan atomic.Int32
	b := asyncq.NewTask(1, func(context.Context, int) asyncq.Status {
		aStatusWhenBRan.Store(int32(a.Status()))
		return asyncq.Complete
	})
	pool.EnqueueTask(a)
	pool.EnqueueTask(b, a)
	waitForAllTasks(t, pool)

	require.Equal(t, int32(3), ticks.Load())
	require.Equal(t, asyncq.Complete, asyncq.Status(aStatusWhenBRan.Load()))
}

func TestDeadPrerequisiteIsSatisfied(t *testing.T) {
	pool := newPool(t, 0)
	b := asyncq.NewTask(1, complete)
	enqueueWithTransientPrerequisite(pool, b)

	for range 100 {
		runtime.GC()
		pool.ProcessTask(0, false)
		if b.IsFinished() {
			return
		}
	}
	t.Fatal("task blocked on a collected prerequisite never ran")
}

// The prerequisite is unreachable once this returns, and is never enqueued,
// so it can never finish.
func enqueueWithTransientPrerequisite(pool *asyncq.Pool, task asyncq.Task) {
	pool.EnqueueTask(task, asyncq.NewTask(0, complete))
}

func TestWaitForAllTasksIsIdle(t *testing.T) {
	pool := newPool(t, 4)
	chk := require.New(t)

	var tasks []*asyncq.FuncTask
	for i := range 100 {
		var prereqs []asyncq.Task
		if i > 0 {
			prereqs = append(prereqs, tasks[i-1])
		}
		tasks = append(tasks, pool.EnqueueFunc(float64(i%7), complete, prereqs...))
	}
	waitForAllTasks(t, pool)

	chk.Zero(pool.QueueSize())
	chk.Zero(pool.RunningTaskCount())
	chk.True(pool.Stats().Idle())
	for _, task := range tasks {
		chk.True(task.IsFinished())
	}
}

func TestWaitForAllTasksWithConcurrentProducers(t *testing.T) {
	pool := newPool(t, 4)
	var ran atomic.Int64

	waiterDone := make(chan struct{})
	stopWaiting := make(chan struct{})
	go func() {
		defer close(waiterDone)
		for {
			select {
			case <-stopWaiting:
				return
			default:
				pool.WaitForAllTasks()
			}
		}
	}()

	var g errgroup.Group
	for producer := range 4 {
		g.Go(func() error {
			for i := range 250 {
				pool.EnqueueFunc(float64((producer+i)%5), func(context.Context, int) asyncq.Status {
					ran.Add(1)
					return asyncq.Complete
				})
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	waitForAllTasks(t, pool)
	close(stopWaiting)
	<-waiterDone

	require.Equal(t, int64(1000), ran.Load())
	require.True(t, pool.Stats().Idle())
}

func TestStopDropsQueuedTasks(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	var ran atomic.Int32
	var tasks []*asyncq.FuncTask
	for i := range 5 {
		tasks = append(tasks, pool.EnqueueFunc(float64(i), func(context.Context, int) asyncq.Status {
			ran.Add(1)
			return asyncq.Complete
		}))
	}
	chk.Equal(5, pool.QueueSize())

	pool.StopThreads()
	chk.Zero(ran.Load())
	chk.Zero(pool.QueueSize())
	chk.Zero(pool.RunningTaskCount())
	for _, task := range tasks {
		chk.Equal(asyncq.NotStarted, task.Status())
	}
	chk.False(pool.ProcessTask(0, false))
	waitForAllTasks(t, pool)

	chk.PanicsWithValue("task enqueued after StopThreads", func() {
		pool.EnqueueTask(asyncq.NewTask(0, complete))
	})

	// A second stop has nothing left to do.
	pool.StopThreads()
}

func TestStopWhileTaskRunning(t *testing.T) {
	pool := newPool(t, 1)
	chk := require.New(t)

	started := make(chan struct{})
	running := pool.EnqueueFunc(10, func(ctx context.Context, _ int) asyncq.Status {
		close(started)
		// Released by StopThreads canceling the context.
		<-ctx.Done()
		return asyncq.Cancelled
	})
	<-started

	var ran atomic.Int32
	for range 5 {
		pool.EnqueueFunc(1, func(context.Context, int) asyncq.Status {
			ran.Add(1)
			return asyncq.Complete
		})
	}
	chk.Equal(5, pool.QueueSize())
	chk.Equal(1, pool.RunningTaskCount())

	pool.StopThreads()
	chk.Equal(asyncq.Cancelled, running.Status())
	chk.Zero(ran.Load())
	chk.True(pool.Stats().Idle())
}

func TestThreadCallbacks(t *testing.T) {
	chk := require.New(t)
	var mu sync.Mutex
	started := make(map[int]int)
	exiting := make(map[int]int)

	pool := asyncq.NewPool(asyncq.Config{
		NumThreads: 3,
		Logger:     zap.NewNop(),
		OnThreadStarted: func(id int) {
			mu.Lock()
			defer mu.Unlock()
			started[id]++
		},
		OnThreadExiting: func(id int) {
			mu.Lock()
			defer mu.Unlock()
			exiting[id]++
		},
	})

	var workerIDs sync.Map
	for range 30 {
		pool.EnqueueFunc(0, func(_ context.Context, workerID int) asyncq.Status {
			workerIDs.Store(workerID, true)
			return asyncq.Complete
		})
	}
	waitForAllTasks(t, pool)
	pool.StopThreads()

	want := map[int]int{0: 1, 1: 1, 2: 1}
	chk.Equal(want, started)
	chk.Equal(want, exiting)
	workerIDs.Range(func(key, _ any) bool {
		chk.Contains([]int{0, 1, 2}, key)
		return true
	})
}

func TestRemoveTask(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	a := pool.EnqueueFunc(1, complete)
	chk.True(pool.RemoveTask(a))
	chk.False(pool.RemoveTask(a))
	chk.Zero(pool.QueueSize())
	chk.Equal(asyncq.NotStarted, a.Status())

	chk.False(pool.RemoveTask(asyncq.NewTask(1, complete)))

	var removedWhileRunning bool
	var self *asyncq.FuncTask
	self = pool.EnqueueFunc(1, func(context.Context, int) asyncq.Status {
		removedWhileRunning = pool.RemoveTask(self)
		return asyncq.Complete
	})
	chk.Equal(1, drain(pool))
	chk.False(removedWhileRunning)
	chk.False(pool.RemoveTask(self))

	chk.PanicsWithValue("task must be non-nil", func() {
		pool.RemoveTask(nil)
	})
}

func TestRemoveLastTaskWakesWaiter(t *testing.T) {
	pool := newPool(t, 0)
	a := pool.EnqueueFunc(1, complete)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.WaitForAllTasks()
	}()

	require.True(t, pool.RemoveTask(a))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForAllTasks did not return after the queue was emptied")
	}
}

func TestReprioritizeTask(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	var log orderLog
	a := log.task(1)
	b := log.task(2)
	pool.EnqueueTask(a)
	pool.EnqueueTask(b)

	a.SetPriority(3)
	chk.True(pool.ReprioritizeTask(a))
	priority, _ := pool.QueuedPriority(a)
	chk.Equal(3.0, priority)

	drain(pool)
	chk.Equal([]float64{1, 2}, log.get()) // a ran first, recording its original priority
	chk.False(pool.ReprioritizeTask(a))

	chk.PanicsWithValue("task must be non-nil", func() {
		pool.ReprioritizeTask(nil)
	})
}

func TestReprioritizeAllTasks(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	var ids []int
	var tasks []*asyncq.FuncTask
	for i := range 5 {
		tasks = append(tasks, pool.EnqueueFunc(0, func(context.Context, int) asyncq.Status {
			ids = append(ids, i)
			return asyncq.Complete
		}))
	}
	tasks[3].SetPriority(2)
	tasks[1].SetPriority(1)
	chk.Equal(2, pool.ReprioritizeAllTasks())
	chk.Zero(pool.ReprioritizeAllTasks())

	drain(pool)
	chk.Equal([]int{3, 1, 0, 2, 4}, ids)
}

func TestTaskRequestingRerun(t *testing.T) {
	pool := newPool(t, 2)
	var runs atomic.Int32
	task := pool.EnqueueFunc(0, func(context.Context, int) asyncq.Status {
		if runs.Add(1) < 5 {
			return asyncq.NotStarted
		}
		return asyncq.Complete
	})
	status, err := task.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, asyncq.Complete, status)
	require.Equal(t, int32(5), runs.Load())
}

func TestRunReturningRunningIsRetried(t *testing.T) {
	chk := require.New(t)
	core, logs := observer.New(zap.ErrorLevel)
	pool := asyncq.NewPool(asyncq.Config{Logger: zap.New(core)})
	defer pool.StopThreads()

	calls := 0
	task := pool.EnqueueFunc(0, func(context.Context, int) asyncq.Status {
		calls++
		if calls == 1 {
			return asyncq.Running
		}
		return asyncq.Complete
	})

	chk.True(pool.ProcessTask(0, false))
	chk.Equal(asyncq.NotStarted, task.Status())
	chk.Equal(1, pool.QueueSize())
	chk.Equal(1, logs.FilterMessage("Task returned a non-terminal status; it will be run again").Len())

	chk.Equal(1, drain(pool))
	chk.Equal(asyncq.Complete, task.Status())
}

func TestCancelledIsFinished(t *testing.T) {
	pool := newPool(t, 0)
	a := pool.EnqueueFunc(0, func(context.Context, int) asyncq.Status {
		return asyncq.Cancelled
	})
	b := pool.EnqueueFunc(0, complete, a)
	drain(pool)
	require.Equal(t, asyncq.Cancelled, a.Status())
	require.Equal(t, asyncq.Complete, b.Status())
}

func TestEnqueueMisuse(t *testing.T) {
	pool := newPool(t, 0)
	chk := require.New(t)

	chk.PanicsWithValue("task must be non-nil", func() {
		pool.EnqueueTask(nil)
	})
	chk.PanicsWithValue("prerequisite must be non-nil", func() {
		pool.EnqueueTask(asyncq.NewTask(0, complete), nil)
	})

	done := pool.EnqueueFunc(0, complete)
	drain(pool)
	chk.PanicsWithValue("task is already finished", func() {
		pool.EnqueueTask(done)
	})

	chk.PanicsWithValue("number of threads must not be negative", func() {
		asyncq.NewPool(asyncq.Config{NumThreads: -1})
	})
}

func TestEnqueueQueuesBelowPrerequisites(t *testing.T) {
	pool := newPool(t, 0)
	a := asyncq.NewTask(2, complete)
	b := asyncq.NewTask(-1, complete)
	c := asyncq.NewTask(7, complete)
	pool.EnqueueTask(c, a, b)
	priority, ok := pool.QueuedPriority(c)
	require.True(t, ok)
	require.Equal(t, -1.0, priority)
	require.Equal(t, -1.0, c.Priority())
	require.Equal(t, 2.0, a.Priority())
}

func TestAffinityFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	pool := asyncq.NewPool(asyncq.Config{
		NumThreads:      2,
		AllowedCoreMask: 1,
		Logger:          zap.New(core),
	})
	task := pool.EnqueueFunc(0, complete)
	waitForAllTasks(t, pool)
	pool.StopThreads()

	require.True(t, task.IsFinished())
	pinned := logs.FilterMessage("Pinned worker to core").Len()
	failed := logs.FilterMessage("Failed to pin worker to core").Len()
	require.Equal(t, 2, pinned+failed)
}
