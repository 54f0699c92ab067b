// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package otasyncq

import (
	"context"

	"github.com/petenewcomb/asyncq-go"
)

// InstrumentedRun combines tracing, metrics, and logging for a task function
// into a single wrapper.
func InstrumentedRun(operationName string, fn asyncq.RunFunc) asyncq.RunFunc {
	// Applied inside-out, so the span covers the logging and metrics.
	loggedRun := LoggedRun(operationName, fn)
	metricsRun := MetricsRun(operationName, loggedRun)
	return TracedRun(operationName, metricsRun)
}

// EnqueueInstrumented creates a fully instrumented [TracedTask] parented on
// the span in ctx and enqueues it as with [asyncq.Pool.EnqueueTask].
//
// Example:
//
//	load := otasyncq.EnqueueInstrumented(ctx, pool, "load-data", 1, loadData)
//	otasyncq.EnqueueInstrumented(ctx, pool, "process-data", 5, process, load)
func EnqueueInstrumented(
	ctx context.Context,
	pool *asyncq.Pool,
	operationName string,
	priority float64,
	fn asyncq.RunFunc,
	prerequisites ...asyncq.Task,
) *TracedTask {
	if fn == nil {
		panic("run function must be non-nil")
	}
	t := NewTracedTask(ctx, operationName, priority,
		MetricsRun(operationName, LoggedRun(operationName, fn)))
	pool.EnqueueTask(t, prerequisites...)
	return t
}
